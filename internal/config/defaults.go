package config

import (
	"github.com/spf13/viper"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink"
)

const (
	StoreDriverFile   = "file"
	StoreDriverLibsql = "libsql"
)

const (
	DefaultMaxRequestsPerUser = 10
	DefaultGreeting           = "Hello! I'm your DeepSeek-powered chat bot. Ask me anything."
	DefaultPollTimeout        = 60
	DefaultDiagnosticsPath    = "debug.log"
	DefaultWorkers            = 8
)

// defaults is keyed by the dotted viper path.
var defaults = map[string]any{
	"limits.max_requests_per_user": DefaultMaxRequestsPerUser,
	"workers":                      DefaultWorkers,

	"ailink.base_url":                    ailink.DefaultBaseURL,
	"ailink.model":                       ailink.DefaultModel,
	"ailink.timeout":                     ailink.DefaultTimeout.String(),
	"ailink.debug.capture_raw_enabled":   true,
	"ailink.debug.capture_raw_max_bytes": 64 * 1024,

	"telegram.poll_timeout": DefaultPollTimeout,
	"telegram.greeting":     DefaultGreeting,
	"telegram.debug":        false,

	"store.driver":     StoreDriverFile,
	"store.path":       "",
	"store.url":        "",
	"store.auth_token": "",

	"diagnostics.path":       DefaultDiagnosticsPath,
	"diagnostics.queue_size": ailink.DefaultDiagnosticQueueSize,

	"server.enabled":          true,
	"server.host":             "localhost",
	"server.port":             8080,
	"server.read_timeout":     "30s",
	"server.write_timeout":    "90s",
	"server.idle_timeout":     "120s",
	"server.shutdown_timeout": "10s",

	"logging.level":       "info",
	"logging.environment": "production",

	"metrics.enabled": true,
	"metrics.port":    9090,
	"health.enabled":  true,
}

// SetDefaults registers the built-in values on v.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
