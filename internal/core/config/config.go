package config

import (
	"fmt"
	"time"

	"github.com/vietddude/refetcher/internal/indexing/refetch"
	redisclient "github.com/vietddude/refetcher/internal/infra/redis"
	"github.com/vietddude/refetcher/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Refetch  RefetchConfig      `yaml:"refetch"`
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

// RefetchConfig holds the YAML-facing workflow settings. Durations are
// strings ("1s", "250ms") since yaml.v2 cannot decode time.Duration.
type RefetchConfig struct {
	FlushInterval string `yaml:"flush_interval"`
	MaxBatchSize  int    `yaml:"max_batch_size"`
	Concurrency   int    `yaml:"concurrency"`
	MaxAttempts   int    `yaml:"max_attempts"`
}

// Workflow converts the YAML-facing settings into the workflow config,
// filling unset values with the workflow defaults.
func (c RefetchConfig) Workflow() (refetch.Config, error) {
	out := refetch.DefaultConfig()
	if c.FlushInterval != "" {
		d, err := time.ParseDuration(c.FlushInterval)
		if err != nil {
			return out, fmt.Errorf("invalid flush_interval: %w", err)
		}
		out.FlushInterval = d
	}
	if c.MaxBatchSize > 0 {
		out.MaxBatchSize = c.MaxBatchSize
	}
	if c.Concurrency > 0 {
		out.Concurrency = c.Concurrency
	}
	if c.MaxAttempts > 0 {
		out.MaxAttempts = c.MaxAttempts
	}
	return out, nil
}
