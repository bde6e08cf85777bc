package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/appid"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	errwrap "github.com/Ding-Fan/deepseek-telegram-bot/internal/errors"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/metrics"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/observability"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/server"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/server/handlers"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/transport/telegram"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker fails when metrics were enabled but the exporter is missing.
type telemetryHealthChecker struct {
	required bool
}

func (t telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if !t.required {
		return nil
	}
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram relay and the HTTP API",
	Long: `Run the Telegram relay and the HTTP API.

The ledger is loaded (and written back) before anything starts listening. The
Telegram poller runs when a bot token is configured; the HTTP server runs when
server.enabled is true. At least one of them must be enabled.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file (restart to apply changes)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		identity := appid.Get()

		cfg, err := loadConfig(ctx)
		if err != nil {
			ExitWithCode(observability.CLILogger, exitCodeFor(err), "Configuration invalid", err)
		}
		if !cfg.Telegram.Enabled() && !cfg.Server.Enabled {
			ExitWithCode(observability.CLILogger, exitCodeFor(config.ErrInvalidConfig), "Nothing to serve",
				fmt.Errorf("%w: set telegram.token or server.enabled", config.ErrInvalidConfig))
		}

		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Logging.Environment)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}
		metrics.SetServerStartTime(time.Now().Unix())

		rt, err := startRelay(ctx, cfg, logger)
		if err != nil {
			ExitWithCode(logger, exitCodeFor(err), "Relay startup failed", err)
		}

		logger.Info("Initializing relay",
			zap.String("service", identity.BinaryName),
			zap.String("version", versionInfo.Version),
			zap.String("model", rt.upstream.Model()),
			zap.Int("max_requests_per_user", cfg.Limits.MaxRequestsPerUser),
			zap.String("store", rt.ledger.Store.Location()),
			zap.Bool("telegram", cfg.Telegram.Enabled()),
			zap.Bool("http", cfg.Server.Enabled))

		hm := handlers.NewHealthManager(versionInfo.Version)
		if cfg.Health.Enabled {
			hm.RegisterChecker("ledger", handlers.LedgerChecker(rt.ledger.Ledger))
			hm.RegisterChecker("store", handlers.StoreChecker(rt.ledger.Store))
			hm.RegisterChecker("telemetry", telemetryHealthChecker{required: cfg.Metrics.Enabled})
		}

		errChan := make(chan error, 3)
		done := make(chan struct{})
		var closeDone sync.Once

		// Shutdown handlers run LIFO: this one runs last.
		signals.OnShutdown(func(ctx context.Context) error {
			defer closeDone.Do(func() { close(done) })
			if err := rt.Close(); err != nil {
				logger.Warn("Relay cleanup returned error", zap.Error(err))
			}
			if err := observability.ShutdownMetrics(); err != nil {
				logger.Warn("Metrics shutdown returned error", zap.Error(err))
			}
			logger.Info("Flushing logger...")
			observability.SyncLoggers()
			return nil
		})

		var srv *server.Server
		if cfg.Server.Enabled {
			handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
			handlers.SetUpstreamModel(rt.upstream.Model())

			srv = server.New(cfg.Server, server.Services{
				Relay:      rt.relay,
				Ledger:     rt.ledger.Ledger,
				Health:     hm,
				Limit:      cfg.Limits.MaxRequestsPerUser,
				AdminToken: os.Getenv(appid.EnvPrefix() + "ADMIN_TOKEN"),
			})

			shutdownTimeout := cfg.Server.ShutdownTimeout
			if shutdownTimeout <= 0 {
				shutdownTimeout = 10 * time.Second
			}
			signals.OnShutdown(func(ctx context.Context) error {
				logger.Info("Shutting down HTTP server...")
				shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return errwrap.WrapInternal(ctx, err, "server shutdown failed")
				}
				logger.Info("HTTP server stopped gracefully")
				return nil
			})

			go func() {
				if err := srv.Start(); err != nil {
					errChan <- fmt.Errorf("http server: %w", err)
				}
			}()
		}

		if cfg.Telegram.Enabled() {
			api, err := telegram.Dial(cfg.Telegram.Token, cfg.Telegram.Debug)
			if err != nil {
				_ = rt.Close()
				ExitWithCode(logger, exitCodeFor(err), "Telegram startup failed", err)
			}
			logger.Info("Authorized on Telegram", zap.String("bot", api.Self.UserName))

			bot := &telegram.Bot{
				API:         api,
				Relay:       rt.relay,
				Logger:      logger,
				Greeting:    cfg.Telegram.Greeting,
				PollTimeout: cfg.Telegram.PollTimeout,
				Workers:     cfg.Workers,
			}
			botCtx, stopBot := context.WithCancel(context.WithoutCancel(ctx))
			botDone := make(chan struct{})

			// Registered after the HTTP handler so the poller stops first.
			signals.OnShutdown(func(ctx context.Context) error {
				logger.Info("Stopping Telegram poller...")
				stopBot()
				select {
				case <-botDone:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			})

			go func() {
				defer close(botDone)
				if err := bot.Run(botCtx); err != nil && !errors.Is(err, context.Canceled) {
					errChan <- fmt.Errorf("telegram poller: %w", err)
				}
			}()
		}

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: re-reading config file")
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			if _, err := config.Load(ctx, viper.GetViper()); err != nil {
				logger.Warn("Reloaded config does not validate", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			logger.Info("Config file re-read; restart to apply changes",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
			closeDone.Do(func() { close(done) })
		}()

		select {
		case err := <-errChan:
			logger.Error("Relay stopped", zap.Error(err))
			if srv != nil {
				_ = srv.Shutdown(context.Background())
			}
			_ = rt.Close()
			observability.SyncLoggers()
			return errwrap.WrapInternal(ctx, err, "serve failed")
		case <-done:
			logger.Info("Shutdown complete")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "127.0.0.1", "HTTP server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "HTTP server port")
	serveCmd.Flags().Bool("http", true, "run the HTTP server (server.enabled)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.enabled", serveCmd.Flags().Lookup("http"))
}
