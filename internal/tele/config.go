package tele

// Config is the tele block of the device config file. Credentials and
// identifiers are fixed at provisioning time.
type Config struct { //nolint:maligned
	App               string `hcl:"app"` // topic namespace
	Broker            string `hcl:"broker"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	RetryBaseDelayMs  int    `hcl:"retry_base_delay_ms"`
	MaxRetries        int    `hcl:"max_retries"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug"`
	TlsCaFile         string `hcl:"tls_ca_file"`
	TlsCertFile       string `hcl:"tls_cert_file"`
	TlsKeyFile        string `hcl:"tls_key_file"` // secret

	// filled from the top-level config
	FarmID   string `hcl:"-"`
	DeviceID string `hcl:"-"`
}
