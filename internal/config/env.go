package config

import (
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/appid"
)

type EnvVarSpec = gfconfig.EnvVarSpec

const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// envStr binds an unprefixed variable name to a dotted config key. Durations
// travel as strings and are converted by the decode hook.
func envStr(name, key string) EnvVarSpec {
	return EnvVarSpec{Name: name, Path: strings.Split(key, "."), Type: EnvString}
}

func envInt(name, key string) EnvVarSpec {
	return EnvVarSpec{Name: name, Path: strings.Split(key, "."), Type: EnvInt}
}

func envBool(name, key string) EnvVarSpec {
	return EnvVarSpec{Name: name, Path: strings.Split(key, "."), Type: EnvBool}
}

// legacyBindings are the unprefixed names used by earlier deployments.
var legacyBindings = []EnvVarSpec{
	envStr("BOT_TOKEN", "telegram.token"),
	envStr("DEEPSEEK_API_KEY", "ailink.api_key"),
	envInt("MAX_REQUESTS_PER_USER", "limits.max_requests_per_user"),
}

// prefixedBindings are read as {prefix}{name}.
var prefixedBindings = []EnvVarSpec{
	envInt("MAX_REQUESTS_PER_USER", "limits.max_requests_per_user"),
	envInt("WORKERS", "workers"),

	envStr("AILINK_BASE_URL", "ailink.base_url"),
	envStr("AILINK_API_KEY", "ailink.api_key"),
	envStr("AILINK_MODEL", "ailink.model"),
	envStr("AILINK_TIMEOUT", "ailink.timeout"),
	envBool("AILINK_DEBUG_CAPTURE_RAW_ENABLED", "ailink.debug.capture_raw_enabled"),
	envInt("AILINK_DEBUG_CAPTURE_RAW_MAX_BYTES", "ailink.debug.capture_raw_max_bytes"),

	envStr("TELEGRAM_TOKEN", "telegram.token"),
	envInt("TELEGRAM_POLL_TIMEOUT", "telegram.poll_timeout"),
	envStr("TELEGRAM_GREETING", "telegram.greeting"),

	envStr("DB_DRIVER", "store.driver"),
	envStr("DB_PATH", "store.path"),
	envStr("DB_URL", "store.url"),
	envStr("DB_AUTH_TOKEN", "store.auth_token"),

	envStr("DIAGNOSTICS_PATH", "diagnostics.path"),
	envInt("DIAGNOSTICS_QUEUE_SIZE", "diagnostics.queue_size"),

	envBool("SERVER_ENABLED", "server.enabled"),
	envStr("HOST", "server.host"),
	envInt("PORT", "server.port"),
	envStr("READ_TIMEOUT", "server.read_timeout"),
	envStr("WRITE_TIMEOUT", "server.write_timeout"),
	envStr("IDLE_TIMEOUT", "server.idle_timeout"),
	envStr("SHUTDOWN_TIMEOUT", "server.shutdown_timeout"),

	envStr("LOG_LEVEL", "logging.level"),
	envStr("LOG_ENVIRONMENT", "logging.environment"),

	envBool("METRICS_ENABLED", "metrics.enabled"),
	envInt("METRICS_PORT", "metrics.port"),
	envBool("HEALTH_ENABLED", "health.enabled"),
}

func specsFor(prefix string, bindings []EnvVarSpec) []EnvVarSpec {
	specs := make([]EnvVarSpec, len(bindings))
	for i, b := range bindings {
		b.Name = prefix + b.Name
		specs[i] = b
	}
	return specs
}

// envLayers returns the override layers in merge order: legacy names first so
// the prefixed variables win.
func envLayers() [][]EnvVarSpec {
	return [][]EnvVarSpec{
		specsFor("", legacyBindings),
		specsFor(appid.EnvPrefix(), prefixedBindings),
	}
}
