package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/carbonready/fieldnode/internal/msg"
	"github.com/carbonready/fieldnode/internal/pipeline"
	"github.com/carbonready/fieldnode/internal/queue"
	"github.com/carbonready/fieldnode/internal/sensor"
	"github.com/carbonready/fieldnode/internal/state"
	"github.com/carbonready/fieldnode/internal/tele"
)

func main() {
	flagConfig := flag.String("config", "fieldnode.hcl", "")
	flag.Parse()

	lg := log.NewWithOptions(os.Stderr, log.Options{
		// under systemd the journal stamps lines already
		ReportTimestamp: !sdnotify("start"),
	})
	lg.Info("hello")

	config := state.MustReadConfigFile(*flagConfig, lg)
	if config.LogDebug {
		lg.SetLevel(log.DebugLevel)
	}
	lg.Debugf("config=%+v", config)

	transport, err := tele.NewTransportMqtt(config.Tele, lg.WithPrefix("tele"))
	if err != nil {
		lg.Fatal(errors.ErrorStack(err))
	}
	ctrl := tele.NewController(transport, config.Tele, lg.WithPrefix("tele"))
	q := queue.Open(config.Queue.Path, config.Queue.Capacity, lg.WithPrefix("queue"))

	var source sensor.Source
	switch config.Sensor.Driver {
	case "sim":
		// hardware probe drivers plug in here as sensor.Source implementations
		source = sensor.NewSim(config.Calibration(), lg.WithPrefix("sensor"))
	default:
		lg.Fatalf("sensor driver=%s unknown", config.Sensor.Driver)
	}

	builder := msg.Builder{FarmID: config.FarmID, DeviceID: config.DeviceID}
	p := pipeline.New(source, builder, q, ctrl, config.ReadingInterval(), lg.WithPrefix("pipeline"))

	// best effort: the pipeline reconnects on demand if the broker is not
	// reachable yet
	if err := ctrl.ConnectRetry(context.Background()); err != nil {
		lg.Errorf("boot connect: %v", err)
	}

	a := alive.NewAlive()
	a.Add(1)
	go func() {
		p.Run()
		a.Done()
		a.Stop()
	}()

	sdnotify(daemon.SdNotifyReady)
	lg.Infof("fieldnode running farm=%s device=%s interval=%v", config.FarmID, config.DeviceID, config.ReadingInterval())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		lg.Infof("signal=%v stopping", sig)
		sdnotify(daemon.SdNotifyStopping)
		p.Stop()
	case <-a.WaitChan():
	}
	ctrl.Close()
	a.Stop()
	a.Wait()
	lg.Info("goodbye")
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify", "err", err)
	}
	return ok
}
