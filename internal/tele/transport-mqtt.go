package tele

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"

	"github.com/carbonready/fieldnode/helpers"
)

const (
	DefaultApp            = "carbonready"
	defaultNetworkTimeout = 30 * time.Second
)

type transportMqtt struct {
	log            *log.Logger
	m              mqtt.Client
	mopt           *mqtt.ClientOptions
	topicData      string
	topicCommand   string
	networkTimeout time.Duration
}

// NewTransportMqtt builds the production transport: MQTT 3.1.1 over TLS
// with the device certificate, QoS 1 publishes, session kept across
// reconnects. It performs no IO; Connect establishes the session.
func NewTransportMqtt(conf Config, lg *log.Logger) (Transporter, error) {
	self := &transportMqtt{log: lg}

	app := conf.App
	if app == "" {
		app = DefaultApp
	}
	self.topicData = fmt.Sprintf("%s/farm/%s/sensor/data", app, conf.FarmID)
	self.topicCommand = fmt.Sprintf("%s/farm/%s/commands", app, conf.FarmID)
	self.networkTimeout = helpers.IntSecondDefault(conf.NetworkTimeoutSec, defaultNetworkTimeout)
	if self.networkTimeout < 1*time.Second {
		self.networkTimeout = 1 * time.Second
	}
	keepalive := helpers.IntSecondDefault(conf.KeepaliveSec, self.networkTimeout/2)

	mqtt.CRITICAL = mqttLogAdapter{self.log.Errorf}
	mqtt.ERROR = mqttLogAdapter{self.log.Errorf}
	mqtt.WARN = mqttLogAdapter{self.log.Warnf}
	if conf.MqttLogDebug {
		mqtt.DEBUG = mqttLogAdapter{self.log.Debugf}
	}

	tlsconf := new(tls.Config)
	if conf.TlsCaFile != "" {
		pem, err := os.ReadFile(conf.TlsCaFile)
		if err != nil {
			return nil, errors.Annotate(err, "tele tls_ca_file")
		}
		tlsconf.RootCAs = x509.NewCertPool()
		if !tlsconf.RootCAs.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("tele tls_ca_file=%s contains no certificates", conf.TlsCaFile)
		}
	}
	if conf.TlsCertFile != "" {
		cert, err := tls.LoadX509KeyPair(conf.TlsCertFile, conf.TlsKeyFile)
		if err != nil {
			return nil, errors.Annotate(err, "tele tls cert/key")
		}
		tlsconf.Certificates = []tls.Certificate{cert}
	}

	self.mopt = mqtt.NewClientOptions().
		AddBroker(conf.Broker).
		SetAutoReconnect(false).
		SetCleanSession(false).
		SetClientID(conf.DeviceID).
		SetConnectTimeout(self.networkTimeout).
		SetKeepAlive(keepalive).
		SetOrderMatters(true).
		SetPingTimeout(self.networkTimeout).
		SetTLSConfig(tlsconf).
		SetWriteTimeout(self.networkTimeout)
	self.m = mqtt.NewClient(self.mopt)

	self.log.Debugf("transport broker=%s publish=%s subscribe=%s", conf.Broker, self.topicData, self.topicCommand)
	return self, nil
}

func (self *transportMqtt) Connect() error {
	if self.m.IsConnected() {
		return nil
	}
	if err := self.tokenWait(self.m.Connect(), "connect"); err != nil {
		return err
	}
	// observe-only: inbound commands are logged, never acted on
	if err := self.tokenWait(self.m.Subscribe(self.topicCommand, 1, self.onCommand), "subscribe:"+self.topicCommand); err != nil {
		self.log.Errorf("tele: %v", err)
	}
	self.log.Infof("connected")
	return nil
}

func (self *transportMqtt) Publish(payload []byte) error {
	t := self.m.Publish(self.topicData, 1, false, payload)
	return self.tokenWait(t, "publish:"+self.topicData)
}

func (self *transportMqtt) Service() {
	// paho maintains keep-alive on its own goroutines; surface link state
	// while the pipeline is idle
	if !self.m.IsConnected() {
		self.log.Debug("service: link down")
	}
}

func (self *transportMqtt) IsConnected() bool { return self.m.IsConnected() }

func (self *transportMqtt) Close() {
	self.m.Disconnect(250) // milliseconds to flush in-flight work
}

func (self *transportMqtt) onCommand(_ mqtt.Client, m mqtt.Message) {
	self.log.Infof("command received topic=%s payload=%s", m.Topic(), m.Payload())
}

func (self *transportMqtt) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(self.networkTimeout) {
		err := errors.Errorf("%s timeout", tag)
		self.log.Errorf("tele: MQTT %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotate(err, tag)
		self.log.Errorf("tele: MQTT %s", err.Error())
		return err
	}
	return nil
}

// paho wants a Println/Printf logger
type mqttLogAdapter struct {
	f func(format string, args ...interface{})
}

func (a mqttLogAdapter) Println(v ...interface{})               { a.f("%s", fmt.Sprintln(v...)) }
func (a mqttLogAdapter) Printf(format string, v ...interface{}) { a.f(format, v...) }
