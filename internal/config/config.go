// Package config provides centralized configuration for the emissions
// service and loader. Settings come from environment variables with
// defaults applied by tag, and the result is validated on startup so a
// misconfigured process fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration shared by the API server
// and the batch loader.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Ingest   IngestConfig
	Query    QueryConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// RequestTimeout is the middleware timeout per request (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`

	// ShutdownTimeout is the maximum wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are trusted
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// DatabaseConfig holds Postgres connection settings. URL is validated at
// connect time rather than load time so that loader dry runs work
// without a database.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of pooled connections (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections kept open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the idle time before a connection closes (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// IngestConfig holds batch loader settings.
type IngestConfig struct {
	// BatchSize is the number of records per bulk write (default: 5000)
	BatchSize int `env:"INGEST_BATCH_SIZE" default:"5000"`

	// RowBuffer is the parsed-row channel capacity between the CSV
	// reader and the batch writer (default: 512)
	RowBuffer int `env:"INGEST_ROW_BUFFER" default:"512"`

	// ProgressEvery is how many rows pass between progress log lines
	// (default: 25000)
	ProgressEvery int `env:"INGEST_PROGRESS_EVERY" default:"25000"`

	// Table is the target reading table (default: emission_readings)
	Table string `env:"INGEST_TABLE" default:"emission_readings"`
}

// QueryConfig holds query endpoint bounds and defaults.
type QueryConfig struct {
	// DefaultLimit is the page size when the client supplies none
	// (default: 100)
	DefaultLimit int `env:"QUERY_DEFAULT_LIMIT" default:"100"`

	// MaxLimit is the largest accepted page size (default: 1000)
	MaxLimit int `env:"QUERY_MAX_LIMIT" default:"1000"`

	// DefaultConfidenceMin is the confidence floor applied when the
	// client supplies none (default: 0.75)
	DefaultConfidenceMin float64 `env:"QUERY_DEFAULT_CONFIDENCE_MIN" default:"0.75"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the per-IP request budget (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
