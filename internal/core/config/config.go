package config

import (
	"github.com/vietddude/docsync/internal/infra/docstore"
	"github.com/vietddude/docsync/internal/infra/docstore/postgres"
	"github.com/vietddude/docsync/internal/infra/docstore/redis"
	"github.com/vietddude/docsync/internal/resilience/diagnostics"
	"github.com/vietddude/docsync/internal/resilience/recovery"
	"github.com/vietddude/docsync/internal/resilience/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Store       StoreConfig        `yaml:"store"`
	Retry       retry.Policy       `yaml:"retry"`
	Recovery    recovery.Config    `yaml:"recovery"`
	Diagnostics diagnostics.Config `yaml:"diagnostics"`
	Telemetry   TelemetryConfig    `yaml:"telemetry"`
	Locale      string             `yaml:"locale"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StoreConfig selects and configures the document backend.
type StoreConfig struct {
	docstore.Config `yaml:",inline"`

	Redis    redis.Config    `yaml:"redis"`
	Database postgres.Config `yaml:"database"`
}

// Endpoint returns the connection target of the selected backend.
func (s StoreConfig) Endpoint() string {
	switch s.Backend {
	case "redis":
		return s.Redis.URL
	case "postgres":
		return s.Database.URL
	}
	return ""
}

// TelemetryConfig sizes the in-memory error log.
type TelemetryConfig struct {
	Capacity int `yaml:"capacity"`
}
