package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/livinlefevreloca/healthsync/internal/db"
	"github.com/livinlefevreloca/healthsync/internal/health"
	"github.com/livinlefevreloca/healthsync/internal/loader"
	"github.com/livinlefevreloca/healthsync/internal/metrics"
)

// EnvDBPass overrides the database password from the config file
const EnvDBPass = "HEALTHSYNC_DB_PASS"

// Config represents the application configuration
type Config struct {
	DB      db.Config      `toml:"db" json:"db"`
	Load    loader.Config  `toml:"load" json:"load"`
	Logging LoggingConfig  `toml:"logging" json:"logging"`
	Metrics metrics.Config `toml:"metrics" json:"metrics"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DB: db.Config{
			Driver:   db.DriverMySQL,
			Host:     "localhost",
			Database: "health",
		},
		Load: loader.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: metrics.Config{
			Job: metrics.DefaultJob,
		},
	}
}

// LoadFromFile loads configuration from a TOML file, or from a JSON file when
// the name ends in .json. Values missing from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: config file does not exist: %s", health.ErrConfig, path)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := decodeJSON(path, config); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file: %w", health.ErrConfig, err)
		}
		return config, nil
	}

	// Parse TOML file
	md, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %w", health.ErrConfig, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown config keys in %s: %v", health.ErrConfig, path, undecoded)
	}

	return config, nil
}

func decodeJSON(path string, config *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewDecoder(f).Decode(config)
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Environment variables
// The result is validated.
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Load from file if specified
	if configPath != "" {
		fileConfig, err := LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	if pass, ok := os.LookupEnv(EnvDBPass); ok {
		config.DB.Pass = pass
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.DB.Validate(); err != nil {
		return fmt.Errorf("%w: %w", health.ErrConfig, err)
	}

	if err := c.Load.Validate(); err != nil {
		return fmt.Errorf("%w: %w", health.ErrConfig, err)
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug, info, warn, or error)", health.ErrConfig, c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: invalid log format: %s (must be text or json)", health.ErrConfig, c.Logging.Format)
	}

	return nil
}
