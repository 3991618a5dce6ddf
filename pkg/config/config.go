package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigFile points at an optional YAML file layered over the defaults
	EnvConfigFile = "CACHE_CONFIG"
	// EnvAddr overrides the listen address
	EnvAddr = "CACHE_ADDR"
	// EnvCapacity overrides the store capacity
	EnvCapacity = "CACHE_CAPACITY"
)

var (
	// ErrInvalidConfig is returned when a loaded config fails validation
	ErrInvalidConfig = errors.New("invalid config")
)

type Config struct {
	Addr           string        `yaml:"addr"`
	Path           string        `yaml:"path"`
	Capacity       int           `yaml:"capacity"`
	MaxInFlight    int64         `yaml:"max_in_flight"`
	MaxFrameBytes  int64         `yaml:"max_frame_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongWait       time.Duration `yaml:"pong_wait"`
	ReapInterval   time.Duration `yaml:"reap_interval"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Addr:           ":8090",
		Path:           "/cache/websocket",
		Capacity:       1024,
		MaxInFlight:    64,
		MaxFrameBytes:  64 * 1024,
		RequestTimeout: 5 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		ReapInterval:   100 * time.Millisecond,
	}
}

// Load builds the config from defaults, the optional CACHE_CONFIG file and
// environment overrides, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if addr := os.Getenv(EnvAddr); addr != "" {
		cfg.Addr = addr
	}
	if raw := os.Getenv(EnvCapacity); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, EnvCapacity, raw)
		}
		cfg.Capacity = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	// fields absent from the file keep their current values
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that every limit is usable
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr is empty", ErrInvalidConfig)
	case c.Path == "" || c.Path[0] != '/':
		return fmt.Errorf("%w: path must start with '/'", ErrInvalidConfig)
	case c.Capacity < 1:
		return fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidConfig, c.Capacity)
	case c.MaxInFlight < 1:
		return fmt.Errorf("%w: max_in_flight must be at least 1", ErrInvalidConfig)
	case c.MaxFrameBytes < 1:
		return fmt.Errorf("%w: max_frame_bytes must be positive", ErrInvalidConfig)
	case c.RequestTimeout <= 0, c.WriteTimeout <= 0, c.ReapInterval <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.PingInterval <= 0 || c.PongWait <= c.PingInterval:
		return fmt.Errorf("%w: pong_wait must exceed ping_interval", ErrInvalidConfig)
	}
	return nil
}
