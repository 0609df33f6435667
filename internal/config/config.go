// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultStorageDirName is the directory created under the system temp dir
// when STORAGE_DIR is unset.
const DefaultStorageDirName = "excel_processor"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Download DownloadConfig
	Jobs     JobsConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	// PORT is what most hosting platforms inject; SERVER_PORT is also accepted.
	Port int `env:"PORT" envAlt:"SERVER_PORT" default:"8000"`

	// PublicURL is the externally visible base URL for download links.
	// A bare host (as RAILWAY_PUBLIC_DOMAIN provides) gets an https:// prefix.
	PublicURL string `env:"PUBLIC_URL" envAlt:"RAILWAY_PUBLIC_DOMAIN"`

	// ReadTimeout is the maximum duration for reading the request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 0, jobs can run for minutes)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 15m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"15m"`

	// TrustedProxies lists CIDRs whose X-Real-IP / X-Forwarded-For headers
	// are believed. Comma-separated; empty trusts nobody.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// StorageConfig holds artifact storage settings.
type StorageConfig struct {
	// Dir is the working directory for staged and cleaned files
	// (default: <system temp>/excel_processor)
	Dir string `env:"STORAGE_DIR"`

	// Retention is how long cleaned files stay downloadable (default: 24h)
	Retention time.Duration `env:"RETENTION" default:"24h"`

	// SweepInterval is how often expired files are deleted (default: 6h)
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" default:"6h"`

	// HistoryRetention is how long job history rows are kept (default: 720h)
	HistoryRetention time.Duration `env:"HISTORY_RETENTION" default:"720h"`
}

// DownloadConfig holds source download settings.
type DownloadConfig struct {
	// MaxBytes is the largest accepted download in bytes (default: 500MiB)
	MaxBytes int64 `env:"DOWNLOAD_MAX_BYTES" default:"524288000"`

	// Timeout is the maximum duration of a download (default: 10m)
	Timeout time.Duration `env:"DOWNLOAD_TIMEOUT" default:"10m"`

	// UserAgent is sent with every download request
	UserAgent string `env:"DOWNLOAD_USER_AGENT" default:"filecleaner/1.0"`
}

// JobsConfig holds job processing settings.
type JobsConfig struct {
	// MaxConcurrent is the maximum number of parallel jobs (default: 4)
	MaxConcurrent int `env:"JOBS_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a job waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"JOBS_MAX_WAIT_TIME" default:"30s"`

	// PreviewRows is the number of rows returned by previews (default: 20)
	PreviewRows int `env:"JOBS_PREVIEW_ROWS" default:"20"`

	// RenameSuffix is appended to every column name (default: _CHANGED)
	RenameSuffix string `env:"JOBS_RENAME_SUFFIX" default:"_CHANGED"`
}

// DatabaseConfig holds the optional job history database settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Job history is disabled when empty.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 5)
	MaxConns int `env:"DB_MAX_CONNS" default:"5"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
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

// BaseURL returns the public base URL without a trailing slash. It falls
// back to http://localhost:<port> when no public URL is configured.
func (c *ServerConfig) BaseURL() string {
	u := strings.TrimRight(strings.TrimSpace(c.PublicURL), "/")
	if u == "" {
		return "http://localhost:" + strconv.Itoa(c.Port)
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// defaultStorageDir returns <system temp>/excel_processor.
func defaultStorageDir() string {
	return filepath.Join(os.TempDir(), DefaultStorageDirName)
}
