// Package state holds the device configuration. Everything here is fixed at
// build/provisioning time; nothing is runtime-mutable.
package state

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/carbonready/fieldnode/helpers"
	"github.com/carbonready/fieldnode/internal/reading"
	"github.com/carbonready/fieldnode/internal/tele"
)

const (
	defaultReadingInterval = 15 * time.Minute
	defaultQueueCapacity   = 100

	// provisioning-time probe counts against dry and saturated soil
	defaultMoistureDry = 3200
	defaultMoistureWet = 1200
)

type Config struct {
	FarmID   string `hcl:"farm_id"`
	DeviceID string `hcl:"device_id"`
	LogDebug bool   `hcl:"log_debug"`

	Sensor struct {
		Driver      string `hcl:"driver"` // sim is the only built-in driver
		IntervalMs  int    `hcl:"interval_ms"`
		MoistureDry int    `hcl:"moisture_dry"`
		MoistureWet int    `hcl:"moisture_wet"`
	} `hcl:"sensor"`

	Tele tele.Config `hcl:"tele"`

	Queue struct {
		Path     string `hcl:"path"`
		Capacity int    `hcl:"capacity"`
	} `hcl:"queue"`
}

func (c *Config) Init() error {
	errs := make([]error, 0, 8)
	if c.FarmID == "" {
		errs = append(errs, errors.Errorf("config: farm_id is not set"))
	}
	if c.DeviceID == "" {
		errs = append(errs, errors.Errorf("config: device_id is not set"))
	}
	if c.Tele.Broker == "" {
		errs = append(errs, errors.Errorf("config: tele.broker is not set"))
	}
	if c.Queue.Path == "" {
		errs = append(errs, errors.Errorf("config: queue.path is not set"))
	}
	if c.Sensor.Driver == "" {
		c.Sensor.Driver = "sim"
	}
	if c.Sensor.Driver != "sim" {
		errs = append(errs, errors.Errorf("config: sensor.driver=%s unknown", c.Sensor.Driver))
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return err
	}
	c.Sensor.MoistureDry = helpers.IntDefault(c.Sensor.MoistureDry, defaultMoistureDry)
	c.Sensor.MoistureWet = helpers.IntDefault(c.Sensor.MoistureWet, defaultMoistureWet)
	c.Queue.Capacity = helpers.IntDefault(c.Queue.Capacity, defaultQueueCapacity)
	c.Tele.FarmID = c.FarmID
	c.Tele.DeviceID = c.DeviceID
	return nil
}

func (c *Config) ReadingInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.Sensor.IntervalMs, defaultReadingInterval)
}

func (c *Config) Calibration() reading.Calibration {
	return reading.Calibration{Dry: c.Sensor.MoistureDry, Wet: c.Sensor.MoistureWet}
}

func ReadConfig(r io.Reader) (*Config, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c := new(Config)
	if err = hcl.Unmarshal(b, c); err != nil {
		return nil, err
	}
	if err = c.Init(); err != nil {
		return nil, err
	}
	return c, nil
}

func ReadConfigFile(path string, lg *log.Logger) (*Config, error) {
	if pathAbs, err := filepath.Abs(path); err != nil {
		lg.Errorf("filepath.Abs(%s) error=%v", path, err)
	} else {
		path = pathAbs
	}
	lg.Debugf("reading config file %s", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadConfig(f)
}

func MustReadConfigFile(path string, lg *log.Logger) *Config {
	c, err := ReadConfigFile(path, lg)
	if err != nil {
		lg.Fatal(err)
	}
	return c
}
