// Package config loads SocketKit configuration from defaults, an optional
// JSON file, and environment variable overrides, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/c360/socketkit/errors"
)

// HTTPConfig configures the HTTP tool gateway.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"` // listen address, e.g. ":8080"
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// NATSConfig configures the optional NATS tool gateway.
type NATSConfig struct {
	Enabled       bool          `json:"enabled"`
	URL           string        `json:"url"`
	SubjectPrefix string        `json:"subject_prefix"` // tool subjects are <prefix>.tool.<name>
	QueueGroup    string        `json:"queue_group"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
}

// SocketConfig configures the TCP connection engine.
type SocketConfig struct {
	DialTimeout   time.Duration `json:"dial_timeout"`
	ReadChunkSize int           `json:"read_chunk_size"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

// Config is the complete service configuration.
type Config struct {
	HTTP    HTTPConfig    `json:"http"`
	Metrics MetricsConfig `json:"metrics"`
	NATS    NATSConfig    `json:"nats"`
	Socket  SocketConfig  `json:"socket"`
	Log     LogConfig     `json:"log"`
}

// Default returns the baseline configuration before file and environment
// overrides.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Enabled: true,
			Address: ":8080",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "socketkit",
			QueueGroup:    "socketkit-tools",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Socket: SocketConfig{
			DialTimeout:   10 * time.Second,
			ReadChunkSize: 4096,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Loader loads configuration with an optional file layer and environment
// overrides.
type Loader struct {
	envPrefix string
}

// NewLoader creates a configuration loader with the SOCKETKIT env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "SOCKETKIT"}
}

// Load builds the configuration: defaults, then the JSON file at path when
// non-empty, then environment overrides, then validation.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Loader", "Load",
				fmt.Sprintf("read config file %s", path))
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load",
				fmt.Sprintf("parse config file %s", path))
		}
	}

	l.applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_HTTP_ADDRESS"); val != "" {
		cfg.HTTP.Address = val
	}
	if val := os.Getenv(l.envPrefix + "_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if val := os.Getenv(l.envPrefix + "_NATS_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			cfg.NATS.Enabled = enabled
		}
	}
	if val := os.Getenv(l.envPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
	if val := os.Getenv(l.envPrefix + "_SOCKET_DIAL_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Socket.DialTimeout = d
		}
	}
	if val := os.Getenv(l.envPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv(l.envPrefix + "_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Enabled && c.HTTP.Address == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: http.address", errors.ErrMissingConfig),
			"Config", "Validate", "http gateway")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: metrics.port %d out of range", errors.ErrInvalidConfig, c.Metrics.Port),
			"Config", "Validate", "metrics server")
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: nats.url", errors.ErrMissingConfig),
				"Config", "Validate", "nats gateway")
		}
		if c.NATS.SubjectPrefix == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: nats.subject_prefix", errors.ErrMissingConfig),
				"Config", "Validate", "nats gateway")
		}
	}
	if c.Socket.DialTimeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: socket.dial_timeout must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "socket engine")
	}
	if c.Socket.ReadChunkSize <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: socket.read_chunk_size must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "socket engine")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: log.level %q", errors.ErrInvalidConfig, c.Log.Level),
			"Config", "Validate", "logging")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: log.format %q", errors.ErrInvalidConfig, c.Log.Format),
			"Config", "Validate", "logging")
	}
	return nil
}
