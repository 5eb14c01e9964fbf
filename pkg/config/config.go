// Package config loads marionette configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultCallTimeout    = 30 * time.Second
	DefaultLogLevel       = "info"
)

// Config represents the complete marionette configuration
type Config struct {
	Driver  DriverConfig  `yaml:"driver"`
	Connect ConnectConfig `yaml:"connect"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// DriverConfig describes the driver subprocess to launch.
type DriverConfig struct {
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args"`
	Env            []string      `yaml:"env"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ConnectConfig covers remote endpoints and call behavior.
type ConnectConfig struct {
	// WSEndpoint, when set, connects over websocket instead of launching a
	// subprocess.
	WSEndpoint  string        `yaml:"ws_endpoint"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// LoggingConfig controls the structured session log.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// TracingConfig toggles span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	Pretty  bool `yaml:"pretty"`
}

// DefaultConfig returns a config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverConfig{
			Args:           []string{"run-driver"},
			ConnectTimeout: DefaultConnectTimeout,
		},
		Connect: ConnectConfig{
			CallTimeout: DefaultCallTimeout,
		},
		Logging: LoggingConfig{
			Dir:   defaultLogDir(),
			Level: DefaultLogLevel,
		},
	}
}

func defaultLogDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "marionette", "logs")
	}
	return filepath.Join(os.TempDir(), "marionette-logs")
}

// Load reads the config file at path, falling back to defaults when path is
// empty or the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers MARIONETTE_* environment variables over the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("MARIONETTE_DRIVER"); v != "" {
		c.Driver.Command = v
	}
	if v := os.Getenv("MARIONETTE_WS_ENDPOINT"); v != "" {
		c.Connect.WSEndpoint = v
	}
	if v := os.Getenv("MARIONETTE_LOG_DIR"); v != "" {
		c.Logging.Dir = v
	}
	if v := os.Getenv("MARIONETTE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MARIONETTE_TRACE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = b
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Driver.Command == "" && c.Connect.WSEndpoint == "" {
		return fmt.Errorf("either driver.command or connect.ws_endpoint must be set")
	}
	if c.Driver.ConnectTimeout < 0 {
		return fmt.Errorf("driver.connect_timeout must not be negative")
	}
	if c.Connect.CallTimeout < 0 {
		return fmt.Errorf("connect.call_timeout must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Logging.Level)
	}
	return nil
}
