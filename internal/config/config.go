package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// AutoEndpoint selects serial port auto-detection in DeviceConfig.Endpoint.
const AutoEndpoint = "auto"

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Device    DeviceConfig    `yaml:"device"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"readTimeoutSec"`
	WriteTimeoutSec int    `yaml:"writeTimeoutSec"`
	IdleTimeoutSec  int    `yaml:"idleTimeoutSec"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DeviceConfig holds serial device settings.
type DeviceConfig struct {
	// Endpoint is either "auto" or an explicit serial path like /dev/ttyUSB0.
	Endpoint           string `yaml:"endpoint"`
	BaudRate           int    `yaml:"baudRate"`
	OpenTimeoutSec     int    `yaml:"openTimeoutSec"`
	TransmitTimeoutSec int    `yaml:"transmitTimeoutSec"`
}

// OpenTimeout returns the session open timeout as a duration.
func (d DeviceConfig) OpenTimeout() time.Duration {
	return time.Duration(d.OpenTimeoutSec) * time.Second
}

// TransmitTimeout returns the per-message transmit timeout as a duration.
func (d DeviceConfig) TransmitTimeout() time.Duration {
	return time.Duration(d.TransmitTimeoutSec) * time.Second
}

// LoggingConfig holds process and audit log settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	AuditFile  string `yaml:"auditFile"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// TelemetryConfig holds event stream settings.
type TelemetryConfig struct {
	BufferSize   int        `yaml:"bufferSize"`
	HeartbeatSec int        `yaml:"heartbeatSec"`
	MQTT         MQTTConfig `yaml:"mqtt"`
}

// HeartbeatInterval returns the SSE heartbeat interval as a duration.
func (t TelemetryConfig) HeartbeatInterval() time.Duration {
	return time.Duration(t.HeartbeatSec) * time.Second
}

// MQTTConfig holds the optional MQTT event mirror settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"clientId"`
	TopicPrefix string `yaml:"topicPrefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// AuthConfig holds API authentication settings. Auth is disabled when the
// secret is empty.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// Enabled reports whether bearer-token authentication is configured.
func (a AuthConfig) Enabled() bool {
	return a.Secret != ""
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 30,
			IdleTimeoutSec:  120,
		},
		Device: DeviceConfig{
			Endpoint:           AutoEndpoint,
			BaudRate:           115200,
			OpenTimeoutSec:     10,
			TransmitTimeoutSec: 10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "logs/meshgw.log",
			AuditFile:  "logs/audit.jsonl",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{
			BufferSize:   256,
			HeartbeatSec: 15,
		},
	}
}

// Load resolves the configuration from defaults, the given YAML file (if it
// exists), and MESHGW_* environment overrides, then validates the result.
// An empty path checks "config.yaml" in the working directory.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile merges YAML file contents over the current config values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return nil
}

// applyEnvOverrides applies MESHGW_* environment variables over the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MESHGW_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("MESHGW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MESHGW_DEVICE_ENDPOINT"); v != "" {
		cfg.Device.Endpoint = v
	}
	if v := os.Getenv("MESHGW_DEVICE_BAUD_RATE"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Device.BaudRate = baud
		}
	}
	if v := os.Getenv("MESHGW_DEVICE_OPEN_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			cfg.Device.OpenTimeoutSec = sec
		}
	}
	if v := os.Getenv("MESHGW_DEVICE_TRANSMIT_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			cfg.Device.TransmitTimeoutSec = sec
		}
	}
	if v := os.Getenv("MESHGW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MESHGW_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("MESHGW_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("MESHGW_MQTT_BROKER"); v != "" {
		cfg.Telemetry.MQTT.Enabled = true
		cfg.Telemetry.MQTT.Broker = v
	}
}

// Validate checks the configuration for values the gateway cannot run with.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Device.Endpoint == "" {
		return fmt.Errorf("device.endpoint must be %q or a serial path", AutoEndpoint)
	}
	if cfg.Device.BaudRate <= 0 {
		return fmt.Errorf("device.baudRate %d must be positive", cfg.Device.BaudRate)
	}
	if cfg.Device.OpenTimeoutSec <= 0 {
		return fmt.Errorf("device.openTimeoutSec %d must be positive", cfg.Device.OpenTimeoutSec)
	}
	if cfg.Device.TransmitTimeoutSec <= 0 {
		return fmt.Errorf("device.transmitTimeoutSec %d must be positive", cfg.Device.TransmitTimeoutSec)
	}
	if cfg.Telemetry.BufferSize <= 0 {
		return fmt.Errorf("telemetry.bufferSize %d must be positive", cfg.Telemetry.BufferSize)
	}
	if cfg.Telemetry.MQTT.Enabled && cfg.Telemetry.MQTT.Broker == "" {
		return fmt.Errorf("telemetry.mqtt.broker is required when the MQTT mirror is enabled")
	}
	return nil
}
