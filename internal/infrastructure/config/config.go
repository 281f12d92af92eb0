package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for TermFleet Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Devices  []DeviceConfig `yaml:"devices"`
	Session  SessionConfig  `yaml:"session"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig contains service-level identification.
type ServiceConfig struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`
}

// DeviceConfig describes one attendance terminal.
// Immutable once loaded; the ID is the stable key across restarts.
type DeviceConfig struct {
	ID             int    `yaml:"id"`
	Name           string `yaml:"name"`
	IP             string `yaml:"ip"`
	Port           int    `yaml:"port"`
	Password       int    `yaml:"password"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
	ForceUDP       bool   `yaml:"force_udp"`
}

// Addr returns the host:port dial address for the device.
func (d DeviceConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.IP, d.Port)
}

// SessionConfig contains per-device session and supervision settings.
type SessionConfig struct {
	// ConnectRetries is the maximum number of connect attempts per Connect call.
	ConnectRetries int `yaml:"connect_retries"`

	// RetryDelaySeconds is the base delay between connect attempts.
	// The actual delay is min(base * attempt, 60s).
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`

	// PingIntervalSeconds drives the staleness threshold for health checks.
	// A session with no packet or ping within 3x this interval is unhealthy.
	PingIntervalSeconds int `yaml:"ping_interval_seconds"`

	// ReadTimeoutSeconds is the live-capture socket read timeout. The read
	// loop must wake at least this often to observe stop requests.
	ReadTimeoutSeconds int `yaml:"read_timeout_seconds"`

	// MonitorIntervalSeconds is the supervisor health-poll cadence.
	MonitorIntervalSeconds int `yaml:"monitor_interval_seconds"`

	// StartTimeoutSeconds bounds each device's initial session setup.
	StartTimeoutSeconds int `yaml:"start_timeout_seconds"`
}

// WebhookConfig contains attendance event forwarding settings.
type WebhookConfig struct {
	// BackendURL is the base URL of the attendance backend.
	// Events are posted to <backend_url>/check-in. Empty disables forwarding.
	BackendURL string `yaml:"backend_url"`

	// TimeoutSeconds is the per-request timeout for webhook POSTs.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// MQTTConfig contains MQTT broker connection settings for status publishing.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for session metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file, applies environment variable
// overrides, and validates the result.
//
// Environment overrides follow the pattern TERMFLEET_SECTION_KEY, for
// example TERMFLEET_WEBHOOK_URL or TERMFLEET_MQTT_HOST. Device entries can
// additionally be supplied through the numbered DEVICE_N_* scheme (see
// loadDevicesFromEnv); env-provided devices take precedence over the YAML
// list so that container deployments can run without a config file edit.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDeviceDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:   "termfleet-core",
			Driver: "sim",
		},
		Session: SessionConfig{
			ConnectRetries:         10,
			RetryDelaySeconds:      6,
			PingIntervalSeconds:    15,
			ReadTimeoutSeconds:     10,
			MonitorIntervalSeconds: 30,
			StartTimeoutSeconds:    30,
		},
		Webhook: WebhookConfig{
			TimeoutSeconds: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "termfleet-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TERMFLEET_DRIVER"); v != "" {
		cfg.Service.Driver = v
	}
	if v := os.Getenv("TERMFLEET_WEBHOOK_URL"); v != "" {
		cfg.Webhook.BackendURL = v
	}
	if v := os.Getenv("TERMFLEET_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TERMFLEET_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TERMFLEET_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("TERMFLEET_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("TERMFLEET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if devices := loadDevicesFromEnv(); len(devices) > 0 {
		cfg.Devices = devices
	}
}

// loadDevicesFromEnv reads device entries from numbered environment
// variables: DEVICE_1_IP, DEVICE_1_NAME, DEVICE_1_PORT and so on,
// stopping at the first gap. A bare DEVICE_IP is accepted as a
// single-device fallback for older deployments.
func loadDevicesFromEnv() []DeviceConfig {
	var devices []DeviceConfig

	for id := 1; ; id++ {
		prefix := fmt.Sprintf("DEVICE_%d_", id)
		ip := os.Getenv(prefix + "IP")
		if ip == "" {
			break
		}

		d := DeviceConfig{
			ID:   id,
			Name: os.Getenv(prefix + "NAME"),
			IP:   ip,
		}
		if d.Name == "" {
			d.Name = fmt.Sprintf("Device %d", id)
		}
		d.Port = envInt(prefix+"PORT", 0)
		d.Password = envInt(prefix+"PASSWORD", 0)
		d.TimeoutSeconds = envInt(prefix+"TIMEOUT", 0)
		d.ForceUDP = envBool(prefix + "FORCE_UDP")
		devices = append(devices, d)
	}

	if len(devices) == 0 {
		if ip := os.Getenv("DEVICE_IP"); ip != "" {
			devices = append(devices, DeviceConfig{
				ID:             1,
				Name:           "Default Device",
				IP:             ip,
				Port:           envInt("DEVICE_PORT", 0),
				Password:       envInt("DEVICE_PASSWORD", 0),
				TimeoutSeconds: envInt("DEVICE_TIMEOUT", 0),
				ForceUDP:       envBool("DEVICE_FORCE_UDP"),
			})
		}
	}

	return devices
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

// applyDeviceDefaults fills zero-valued per-device fields.
func applyDeviceDefaults(cfg *Config) {
	for i := range cfg.Devices {
		if cfg.Devices[i].Port == 0 {
			cfg.Devices[i].Port = 4370
		}
		if cfg.Devices[i].Name == "" {
			cfg.Devices[i].Name = fmt.Sprintf("Device %d", cfg.Devices[i].ID)
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.Driver == "" {
		errs = append(errs, "service.driver is required")
	}

	seen := make(map[int]bool, len(c.Devices))
	for _, d := range c.Devices {
		if d.ID <= 0 {
			errs = append(errs, fmt.Sprintf("device %q: id must be a positive integer", d.Name))
			continue
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("device id %d appears more than once", d.ID))
		}
		seen[d.ID] = true
		if d.IP == "" {
			errs = append(errs, fmt.Sprintf("device %d: ip is required", d.ID))
		}
		if d.Port < 1 || d.Port > 65535 {
			errs = append(errs, fmt.Sprintf("device %d: port must be between 1 and 65535", d.ID))
		}
	}

	if c.Session.ConnectRetries < 1 {
		errs = append(errs, "session.connect_retries must be at least 1")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RetryDelay returns the base connect retry delay as a Duration.
func (c *SessionConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// PingInterval returns the health ping interval as a Duration.
func (c *SessionConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// ReadTimeout returns the live-capture read timeout as a Duration.
func (c *SessionConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// MonitorInterval returns the supervisor poll interval as a Duration.
func (c *SessionConfig) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSeconds) * time.Second
}

// StartTimeout returns the per-device startup bound as a Duration.
func (c *SessionConfig) StartTimeout() time.Duration {
	return time.Duration(c.StartTimeoutSeconds) * time.Second
}

// Timeout returns the webhook request timeout as a Duration.
func (c *WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
