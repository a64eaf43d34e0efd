// Package config defines the global configuration structure for the herald
// service. Configuration is loaded once at process startup and is immutable
// thereafter. It follows 12-Factor principles by strictly separating code
// from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"herald/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the herald service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"herald"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain configurations
	Server  ServerConfig
	Ledger  LedgerConfig
	Auth    AuthConfig
	Webhook WebhookConfig
	Archive ArchiveConfig

	// Build metadata (injected via ldflags, not env)
	Build BuildInfo
}

// ServerConfig holds HTTP server tuning parameters.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

// LedgerConfig selects and tunes the message ledger store. Postgres is the
// production driver; SQLite serves single-node deployments. DATABASE_URL is
// required when the postgres driver is selected.
type LedgerConfig struct {
	Driver     string       `envconfig:"LEDGER_DRIVER" default:"postgres" validate:"oneof=postgres sqlite"`
	URL        SecretString `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`
	SQLitePath string       `envconfig:"SQLITE_PATH" default:"herald.db"`

	// Pool tuning (postgres only)
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AuthConfig holds the operator credential and the caller registry location.
type AuthConfig struct {
	AdminSecret SecretString `envconfig:"ADMIN_SECRET" validate:"required,min=16"`
	CallersFile string       `envconfig:"CALLERS_FILE" default:"callers.yaml"`
}

// WebhookConfig holds settings for outbound webhook delivery.
type WebhookConfig struct {
	UserAgent    string        `envconfig:"WEBHOOK_USER_AGENT" default:"Herald-Webhook/1.0"`
	Timeout      time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
	MaxRedirects int           `envconfig:"WEBHOOK_MAX_REDIRECTS" default:"3"`
}

// ArchiveConfig tunes the retention sweep: terminal ledger records older
// than Retention are exported to Dir as zstd-compressed NDJSON and pruned.
type ArchiveConfig struct {
	Dir       string        `envconfig:"ARCHIVE_DIR" default:"archive"`
	Retention time.Duration `envconfig:"ARCHIVE_RETENTION" default:"2160h"`
	BatchSize int           `envconfig:"ARCHIVE_BATCH_SIZE" default:"500" validate:"min=1"`
	Cron      string        `envconfig:"ARCHIVE_CRON" default:"0 3 * * *"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrRegistry indicates the caller registry file could not be loaded or
	// failed its shape checks.
	ErrRegistry ConfigErrorType = "REGISTRY_FAILED"
)
