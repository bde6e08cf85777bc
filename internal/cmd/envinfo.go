package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/appid"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration and version information. Secrets are shown only as set or not set.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		version := crucible.GetVersion()
		identity := appid.Get()

		logger.Info("=== " + identity.BinaryName + " Environment Information ===")
		logger.Info("")

		logger.Info("Application:")
		logger.Info("  Name:       " + identity.BinaryName)
		logger.Info("  Version:    " + versionInfo.Version)
		logger.Info("  Commit:     " + versionInfo.Commit)
		logger.Info("  Built:      " + versionInfo.BuildDate)
		logger.Info("  Env Prefix: " + identity.EnvPrefix)
		logger.Info("")

		logger.Info("SSOT:")
		logger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		logger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		logger.Info("")

		logger.Info("Runtime:")
		logger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		logger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		logger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		logger.Info("")

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return
		}

		configFile := viper.ConfigFileUsed()
		if configFile == "" {
			configFile = config.DefaultConfigPath() + " (not found)"
		}

		logger.Info("Configuration:")
		logger.Info("  Config File:      " + configFile)
		logger.Info(fmt.Sprintf("  Max Requests:     %d", cfg.Limits.MaxRequestsPerUser), zap.Int("max_requests_per_user", cfg.Limits.MaxRequestsPerUser))
		logger.Info("  Store Driver:     "+cfg.Store.Driver, zap.String("store_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			logger.Info("  Store URL:        " + cfg.Store.URL)
			logger.Info("  Store Auth Token: " + setOrNot(cfg.Store.AuthToken))
		} else {
			logger.Info("  Store Path:       "+cfg.Store.Path, zap.String("store_path", cfg.Store.Path))
		}
		logger.Info("  Diagnostics Log:  " + cfg.Diagnostics.Path)
		logger.Info("  Log Level:        " + cfg.Logging.Level)
		logger.Info("")

		logger.Info("Upstream:")
		logger.Info("  Base URL:         " + cfg.AILink.BaseURL)
		logger.Info("  Model:            " + cfg.AILink.Model)
		logger.Info("  Timeout:          " + cfg.AILink.Timeout.String())
		logger.Info("  API Key:          " + setOrNot(cfg.AILink.APIKey))
		logger.Info("")

		logger.Info("Telegram:")
		logger.Info("  Token:            " + setOrNot(cfg.Telegram.Token))
		logger.Info(fmt.Sprintf("  Poll Timeout:     %ds", cfg.Telegram.PollTimeout))
		logger.Info(fmt.Sprintf("  Workers:          %d", cfg.Workers))
		logger.Info("")

		logger.Info("HTTP:")
		logger.Info(fmt.Sprintf("  Enabled:          %t", cfg.Server.Enabled))
		logger.Info(fmt.Sprintf("  Listen:           %s:%d", cfg.Server.Host, cfg.Server.Port))
		logger.Info(fmt.Sprintf("  Metrics:          %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		logger.Info("")

		logger.Info("=== End Environment Information ===")
	},
}

func setOrNot(secret string) string {
	if strings.TrimSpace(secret) == "" {
		return "(not set)"
	}
	return "(set)"
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
