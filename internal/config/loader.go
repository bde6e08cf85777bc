// Package config resolves deepseek-bot configuration from defaults, an
// optional YAML file read through viper, and environment variables mapped
// with gofulmen/config.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/appid"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var current atomic.Pointer[Config]

// GetConfig returns the configuration produced by the last successful Load.
func GetConfig() *Config {
	return current.Load()
}

// Load resolves the configuration held by v (or the global viper when nil),
// applies environment overrides and validates the result.
func Load(ctx context.Context, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	SetDefaults(v)

	if err := mergeEnv(v); err != nil {
		return nil, err
	}

	cfg, err := decode(v.AllSettings())
	if err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	current.Store(cfg)
	return cfg, nil
}

func mergeEnv(v *viper.Viper) error {
	for _, layer := range envLayers() {
		overrides, err := gfconfig.LoadEnvOverrides(layer)
		if err != nil {
			return fmt.Errorf("load environment overrides: %w", err)
		}
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return fmt.Errorf("merge environment overrides: %w", err)
		}
	}
	return nil
}

func decode(settings map[string]any) (*Config, error) {
	cfg := new(Config)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("create config decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

// Validate checks values that would otherwise fail at runtime.
func (c *Config) Validate() error {
	switch {
	case c.Limits.MaxRequestsPerUser < 0:
		return invalid("limits.max_requests_per_user must be >= 0, got %d", c.Limits.MaxRequestsPerUser)
	case c.Store.Driver != StoreDriverFile && c.Store.Driver != StoreDriverLibsql:
		return invalid("unsupported store.driver %q", c.Store.Driver)
	case c.Workers < 1:
		return invalid("workers must be >= 1, got %d", c.Workers)
	case c.AILink.Timeout < 0:
		return invalid("ailink.timeout must not be negative")
	}
	return nil
}

// RequireUpstream fails when no upstream API key is configured.
func (c *Config) RequireUpstream() error {
	if strings.TrimSpace(c.AILink.APIKey) == "" {
		return invalid("ailink.api_key is required (set %sAILINK_API_KEY or DEEPSEEK_API_KEY)", appid.EnvPrefix())
	}
	return nil
}

func (c *Config) normalize() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = StoreDriverFile
	}
	if strings.TrimSpace(c.Store.URL) == "" && strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = DefaultStorePath(c.Store.Driver)
	}

	c.Telegram.Token = strings.TrimSpace(c.Telegram.Token)
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = DefaultPollTimeout
	}

	c.AILink.APIKey = strings.TrimSpace(c.AILink.APIKey)
	c.AILink = c.AILink.WithDefaults()

	if c.Diagnostics.QueueSize <= 0 {
		c.Diagnostics.QueueSize = ailink.DefaultDiagnosticQueueSize
	}
}
