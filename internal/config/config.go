// Package config provides centralized configuration management for the
// ingestion engine. It loads settings from environment variables with
// sensible defaults and validates everything on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all engine configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Ingest   IngestConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// IngestConfig holds feed processing settings.
type IngestConfig struct {
	// MaxFileSize is the maximum allowed feed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"52428800"`

	// TxTimeout bounds the per-file batch transaction (default: 20s)
	TxTimeout time.Duration `env:"INGEST_TX_TIMEOUT" default:"20s"`

	// SourceTag is recorded on every fact row this engine inserts (default: price-feed)
	SourceTag string `env:"INGEST_SOURCE_TAG" default:"price-feed"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}
