package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/docsync/internal/resilience/classify"
	"github.com/vietddude/docsync/internal/resilience/diagnostics"
	"github.com/vietddude/docsync/internal/resilience/recovery"
	"github.com/vietddude/docsync/internal/resilience/telemetry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables and
// filling defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration for the in-memory backend.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "docsync"
	}
	c.Retry = c.Retry.WithDefaults()

	rd := recovery.DefaultConfig()
	if c.Recovery.MaxAttempts <= 0 {
		c.Recovery.MaxAttempts = rd.MaxAttempts
	}
	if c.Recovery.Cooldown <= 0 {
		c.Recovery.Cooldown = rd.Cooldown
	}

	dd := diagnostics.DefaultConfig()
	if c.Diagnostics.Timeout <= 0 {
		c.Diagnostics.Timeout = dd.Timeout
	}
	if c.Diagnostics.Interval <= 0 {
		c.Diagnostics.Interval = dd.Interval
	}
	if c.Diagnostics.ProbeCollection == "" {
		c.Diagnostics.ProbeCollection = dd.ProbeCollection
	}
	if c.Diagnostics.ProbeDocument == "" {
		c.Diagnostics.ProbeDocument = dd.ProbeDocument
	}
	if c.Diagnostics.RateLimit <= 0 {
		c.Diagnostics.RateLimit = dd.RateLimit
	}

	if c.Telemetry.Capacity <= 0 {
		c.Telemetry.Capacity = telemetry.DefaultCapacity
	}
	if c.Locale == "" {
		c.Locale = classify.DefaultLocale
	}
}

// Validate checks the backend selection.
func (c *AppConfig) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.Redis.URL == "" {
			return fmt.Errorf("store.redis.url is required for the redis backend")
		}
	case "postgres":
		if c.Store.Database.URL == "" {
			return fmt.Errorf("store.database.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}
