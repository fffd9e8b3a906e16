package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override bootstrap values.
const (
	EnvRobotURL  = "STATION_ROBOT_URL"
	EnvHTTPPort  = "STATION_HTTP_PORT"
	EnvPassword  = "STATION_PASSWORD"
	EnvLogLevel  = "STATION_LOG_LEVEL"
	EnvConfigDir = "STATION_CONFIG_DIR"
)

// BootstrapConfig holds the process settings loaded from station.yaml (or
// station.toml). Unlike Config it cannot be changed while running.
type BootstrapConfig struct {
	Logging LoggingConfig `yaml:"logging" toml:"logging" json:"logging"`
	Server  ServerConfig  `yaml:"server" toml:"server" json:"server"`
	Robot   RobotConfig   `yaml:"robot" toml:"robot" json:"robot"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth" json:"-"`
	Sinks   SinksConfig   `yaml:"sinks" toml:"sinks" json:"sinks"`
	Data    DataConfig    `yaml:"data" toml:"data" json:"data"`
}

// LoggingConfig holds logging settings from bootstrap
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level" json:"level"`
	LogPath string `yaml:"log_path,omitempty" toml:"log_path" json:"log_path,omitempty"`
}

// ServerConfig holds the operator HTTP server settings.
type ServerConfig struct {
	HTTPPort       int `yaml:"http_port" toml:"http_port" json:"http_port"`
	RequestTimeout int `yaml:"request_timeout" toml:"request_timeout" json:"request_timeout"`
	MaxRequestSize int `yaml:"max_request_size" toml:"max_request_size" json:"max_request_size"`
}

// RobotConfig describes the websocket link to the rover.
type RobotConfig struct {
	URL                 string `yaml:"url" toml:"url" json:"url"`
	ReconnectIntervalMs int    `yaml:"reconnect_interval_ms" toml:"reconnect_interval_ms" json:"reconnect_interval_ms"`
	WriteTimeoutMs      int    `yaml:"write_timeout_ms" toml:"write_timeout_ms" json:"write_timeout_ms"`
}

// ReconnectInterval returns the reconnect delay as a duration.
func (r RobotConfig) ReconnectInterval() time.Duration {
	return time.Duration(r.ReconnectIntervalMs) * time.Millisecond
}

// WriteTimeout returns the per-frame write deadline as a duration.
func (r RobotConfig) WriteTimeout() time.Duration {
	return time.Duration(r.WriteTimeoutMs) * time.Millisecond
}

// AuthConfig holds the operator password. With an empty password no
// operator can be authorized, so override and power-on stay locked.
type AuthConfig struct {
	Password string `yaml:"password" toml:"password"`
}

// SinksConfig configures the telemetry fan-out.
type SinksConfig struct {
	Workers   int          `yaml:"workers" toml:"workers" json:"workers"`
	QueueSize int          `yaml:"queue_size" toml:"queue_size" json:"queue_size"`
	Log       bool         `yaml:"log" toml:"log" json:"log"`
	ZeroMQ    ZeroMQConfig `yaml:"zeromq" toml:"zeromq" json:"zeromq"`
	MQTT      MQTTConfig   `yaml:"mqtt" toml:"mqtt" json:"mqtt"`
}

// ZeroMQConfig holds the telemetry PUB socket settings.
type ZeroMQConfig struct {
	Enabled            bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	PublishBindAddress string `yaml:"publish_bind_address" toml:"publish_bind_address" json:"publish_bind_address"`
}

// MQTTConfig holds the MQTT telemetry publisher settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Broker      string `yaml:"broker" toml:"broker" json:"broker"`
	TopicPrefix string `yaml:"topic_prefix" toml:"topic_prefix" json:"topic_prefix"`
	QoS         byte   `yaml:"qos" toml:"qos" json:"qos"`
	Retain      bool   `yaml:"retain" toml:"retain" json:"retain"`
}

// DataConfig holds data directory settings from bootstrap
type DataConfig struct {
	Directory             string `yaml:"directory" toml:"directory" json:"directory"`
	StationConfigFilename string `yaml:"station_config_file" toml:"station_config_file" json:"station_config_file"`
}

// StationConfigPath joins the data directory and the station config name.
func (d DataConfig) StationConfigPath() string {
	return filepath.Join(d.Directory, d.StationConfigFilename)
}

// DefaultBootstrap returns the values used for anything station.yaml leaves
// out.
func DefaultBootstrap() BootstrapConfig {
	return BootstrapConfig{
		Logging: LoggingConfig{Level: "info"},
		Server:  ServerConfig{HTTPPort: 8080, RequestTimeout: 10, MaxRequestSize: 1 << 20},
		Robot: RobotConfig{
			URL:                 "ws://127.0.0.1:8081/ws",
			ReconnectIntervalMs: 2000,
			WriteTimeoutMs:      50,
		},
		Sinks: SinksConfig{
			Workers:   1,
			QueueSize: 16,
			Log:       true,
			ZeroMQ:    ZeroMQConfig{PublishBindAddress: "tcp://*:5556"},
			MQTT:      MQTTConfig{Broker: "tcp://127.0.0.1:1883", TopicPrefix: "station"},
		},
		Data: DataConfig{Directory: "data", StationConfigFilename: "station_config.yaml"},
	}
}

// FindBootstrapFile returns station.yaml or station.toml inside configDir,
// preferring YAML.
func FindBootstrapFile(configDir string) (string, error) {
	for _, name := range []string{"station.yaml", "station.yml", "station.toml"} {
		path := filepath.Join(configDir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no station.yaml or station.toml in '%s'", configDir)
}

// LoadBootstrapConfig loads the bootstrap configuration from configDir, then
// applies a .env file from the same directory and the process environment.
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	path, err := FindBootstrapFile(configDir)
	if err != nil {
		return nil, err
	}

	cfg := DefaultBootstrap()
	if err := decodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("error loading bootstrap config file '%s': %w", path, err)
	}
	if err := LoadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bootstrap config '%s': %w", path, err)
	}
	return &cfg, nil
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading env file '%s': %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *BootstrapConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvRobotURL); ok && v != "" {
		c.Robot.URL = v
	}
	if v, ok := lookup(EnvHTTPPort); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHTTPPort, err)
		}
		c.Server.HTTPPort = port
	}
	if v, ok := lookup(EnvPassword); ok {
		c.Auth.Password = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks the required bootstrap fields.
func (c *BootstrapConfig) Validate() error {
	if c.Robot.URL == "" {
		return fmt.Errorf("missing required field: robot.url")
	}
	if !strings.HasPrefix(c.Robot.URL, "ws://") && !strings.HasPrefix(c.Robot.URL, "wss://") {
		return fmt.Errorf("robot.url must be a ws:// or wss:// url, got %q", c.Robot.URL)
	}
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort)
	}
	if c.Robot.ReconnectIntervalMs <= 0 || c.Robot.WriteTimeoutMs <= 0 {
		return fmt.Errorf("robot reconnect and write timeouts must be positive")
	}
	if c.Sinks.Workers < 1 || c.Sinks.QueueSize < 1 {
		return fmt.Errorf("sinks.workers and sinks.queue_size must be positive")
	}
	if c.Sinks.ZeroMQ.Enabled && c.Sinks.ZeroMQ.PublishBindAddress == "" {
		return fmt.Errorf("missing required field: sinks.zeromq.publish_bind_address")
	}
	if c.Sinks.MQTT.Enabled && c.Sinks.MQTT.Broker == "" {
		return fmt.Errorf("missing required field: sinks.mqtt.broker")
	}
	if c.Sinks.MQTT.QoS > 2 {
		return fmt.Errorf("sinks.mqtt.qos must be 0, 1 or 2")
	}
	if c.Data.Directory == "" {
		return fmt.Errorf("missing required field: data.directory")
	}
	if c.Data.StationConfigFilename == "" {
		return fmt.Errorf("missing required field: data.station_config_file")
	}
	return nil
}
