package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the device server.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// ServerConfig contains settings for the parent server process.
type ServerConfig struct {
	// Host is the default bind address for worker rpc daemons whose
	// device entries do not set their own.
	Host string `yaml:"host"`

	// StatusPort is the port of the parent's own status endpoint.
	StatusPort int `yaml:"status_port"`

	// GracefulTimeout is how long a worker gets between SIGTERM and
	// SIGKILL, in seconds.
	GracefulTimeout int `yaml:"graceful_timeout"`
}

// DeviceConfig declares one device entry. Each entry becomes one worker
// process hosting the constructed device(s).
type DeviceConfig struct {
	// Name identifies the entry; it becomes the rpc object name and the
	// worker's log identity. Must be unique.
	Name string `yaml:"name"`

	// Driver selects the registered device factory, e.g. "sim.camera".
	Driver string `yaml:"driver"`

	// Host overrides server.host for this entry's rpc daemon.
	Host string `yaml:"host,omitempty"`

	// Port is the rpc daemon port for this entry's worker. Must be
	// unique across entries.
	Port int `yaml:"port"`

	// UID selects a specific physical unit when the driver registers a
	// floating device class. Entries for floating drivers must set it;
	// entries for fixed drivers must leave it empty.
	UID string `yaml:"uid,omitempty"`

	// Conf carries driver-specific options, passed verbatim to the
	// factory.
	Conf map[string]any `yaml:"conf,omitempty"`

	// RestartOnFailure restarts this entry's worker after an unexpected
	// exit. Off by default: devices come back uninitialized.
	RestartOnFailure bool `yaml:"restart_on_failure,omitempty"`

	// AnnounceFrames publishes per-frame metadata on the entry's frames
	// topic. Needs mqtt.enabled; pixel data never goes to the broker.
	AnnounceFrames bool `yaml:"announce_frames,omitempty"`
}

// DatabaseConfig contains SQLite settings for the entry status store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
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

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// TelemetryConfig contains InfluxDB settings for lifecycle and
// acquisition telemetry.
type TelemetryConfig struct {
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

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern RIGCORE_SECTION_KEY, for
// example RIGCORE_DATABASE_PATH or RIGCORE_MQTT_HOST.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // Path comes from the operator's command line
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			StatusPort:      7600,
			GracefulTimeout: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/rigcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "rigcore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RIGCORE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("RIGCORE_SERVER_STATUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.StatusPort = port
		}
	}

	if v := os.Getenv("RIGCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("RIGCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RIGCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RIGCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("RIGCORE_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Entry-level invariants (port uniqueness, uid rules against the driver
// registry) are checked by the server, which knows which drivers are
// floating; Validate covers everything knowable from the file alone.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.StatusPort < 1 || c.Server.StatusPort > 65535 {
		errs = append(errs, "server.status_port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Bucket == "" {
			errs = append(errs, "telemetry.bucket is required when telemetry is enabled")
		}
	}

	names := make(map[string]struct{}, len(c.Devices))
	for i, dev := range c.Devices {
		where := fmt.Sprintf("devices[%d]", i)
		if dev.Name == "" {
			errs = append(errs, where+".name is required")
		} else {
			if _, dup := names[dev.Name]; dup {
				errs = append(errs, fmt.Sprintf("%s.name %q is duplicated", where, dev.Name))
			}
			names[dev.Name] = struct{}{}
		}
		if dev.Driver == "" {
			errs = append(errs, where+".driver is required")
		}
		if dev.Port < 1 || dev.Port > 65535 {
			errs = append(errs, where+".port must be between 1 and 65535")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Entry returns the device entry with the given name.
func (c *Config) Entry(name string) (DeviceConfig, bool) {
	for _, dev := range c.Devices {
		if dev.Name == name {
			return dev, true
		}
	}
	return DeviceConfig{}, false
}

// GracefulTimeout returns the worker shutdown grace period as a
// Duration.
func (c *Config) GracefulTimeout() time.Duration {
	return time.Duration(c.Server.GracefulTimeout) * time.Second
}

// Address returns the rpc daemon address for a device entry, falling
// back to the server-wide host.
func (c *Config) Address(dev DeviceConfig) string {
	host := dev.Host
	if host == "" {
		host = c.Server.Host
	}
	return fmt.Sprintf("%s:%d", host, dev.Port)
}
