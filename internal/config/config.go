package config

import (
	"time"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink"
)

// Config represents the complete application configuration.
//
// Precedence, lowest first: built-in defaults, config file, legacy unprefixed
// environment names, DEEPSEEK_BOT_* environment variables.
type Config struct {
	Limits      LimitsConfig      `mapstructure:"limits"`
	AILink      ailink.Config     `mapstructure:"ailink"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Store       StoreConfig       `mapstructure:"store"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Health      HealthConfig      `mapstructure:"health"`
	Workers     int               `mapstructure:"workers"`
}

// LimitsConfig holds the per-user quota.
type LimitsConfig struct {
	// MaxRequestsPerUser is the lifetime number of admitted messages per user.
	MaxRequestsPerUser int `mapstructure:"max_requests_per_user"`
}

// TelegramConfig configures the chat transport. An empty token disables it.
type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	PollTimeout int    `mapstructure:"poll_timeout"`
	Greeting    string `mapstructure:"greeting"`
	Debug       bool   `mapstructure:"debug"`
}

// Enabled reports whether a bot token is configured.
func (t TelegramConfig) Enabled() bool {
	return t.Token != ""
}

// StoreConfig selects where the ledger snapshot lives.
//
// Driver "file" keeps a JSON document at Path; driver "libsql" stores the same
// document in a libsql database at Path or URL.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// DiagnosticsConfig configures the upstream failure log.
type DiagnosticsConfig struct {
	Path      string `mapstructure:"path"`
	QueueSize int    `mapstructure:"queue_size"`
}

// ServerConfig controls the HTTP surface. Timeouts apply to the listener.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Environment is attached to every structured log line.
	Environment string `mapstructure:"environment"`
}

// MetricsConfig enables the telemetry system. The Prometheus exporter listens
// on Port; the HTTP server also proxies it at /metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig gates registration of the ledger and store checks.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
