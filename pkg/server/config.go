package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config contains the file server configuration
type Config struct {
	// Network address to listen on (e.g. ":7050")
	ListenAddress string `yaml:"listen_address"`

	// Image is the path of the ext2 image to serve
	Image string `yaml:"image"`

	// Maximum concurrent requests
	MaxConcurrent int `yaml:"max_concurrent"`

	// Maximum open client connections, 0 for no limit
	MaxConnections int `yaml:"max_connections"`

	// Maximum read size in bytes
	MaxReadSize int `yaml:"max_read_size"`

	// Maximum write size in bytes
	MaxWriteSize int `yaml:"max_write_size"`

	// Maximum entries returned by one ReadDir call
	MaxReadDirCount int `yaml:"max_readdir_count"`

	// Request timeout in seconds
	RequestTimeout int `yaml:"request_timeout"`

	// LogLevel is a logrus level name
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:   ":7050",
		Image:           "disk.img",
		MaxConcurrent:   100,
		MaxConnections:  64,
		MaxReadSize:     1024 * 1024, // 1MB
		MaxWriteSize:    1024 * 1024, // 1MB
		MaxReadDirCount: 1000,
		RequestTimeout:  30, // 30 seconds
		LogLevel:        "info",
	}
}

// LoadConfig reads a YAML file over the defaults. Keys missing from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the limits in c.
func (c *Config) Validate() error {
	switch {
	case c.ListenAddress == "":
		return fmt.Errorf("listen_address is required")
	case c.MaxConcurrent <= 0:
		return fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent)
	case c.MaxConnections < 0:
		return fmt.Errorf("max_connections must not be negative, got %d", c.MaxConnections)
	case c.MaxReadSize <= 0 || c.MaxWriteSize <= 0:
		return fmt.Errorf("max_read_size and max_write_size must be positive")
	case c.MaxReadDirCount <= 0:
		return fmt.Errorf("max_readdir_count must be positive, got %d", c.MaxReadDirCount)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("request_timeout must be positive, got %d", c.RequestTimeout)
	}
	return nil
}
