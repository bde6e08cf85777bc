package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/observability"
)

// selfCheck is one step of the health command.
type selfCheck struct {
	name string
	run  func(ctx context.Context, cfg *config.Config) error
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long: `Run a self-health check to verify the relay can start.

Checks configuration, the ledger store and the diagnostics path. The ledger is
loaded the same way serve loads it, so a malformed snapshot is reset here too.
The upstream API is not contacted.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		logger.Info("Running health check...")

		cfg, err := loadConfig(ctx)
		if err != nil {
			logger.Error("❌ FAIL: configuration", zap.Error(err))
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		logger.Info("✅ Configuration loaded")

		failed := 0
		for _, check := range selfChecks() {
			if err := check.run(ctx, cfg); err != nil {
				failed++
				logger.Error("❌ FAIL: "+check.name, zap.Error(err))
				continue
			}
			logger.Info("✅ " + check.name)
		}

		if failed > 0 {
			ExitWithCode(logger, foundry.ExitFailure, "Health check failed", fmt.Errorf("%d check(s) failed", failed))
			return
		}
		logger.Info("✅ All health checks passed")
	},
}

func selfChecks() []selfCheck {
	return []selfCheck{
		{name: "Upstream API key configured", run: func(_ context.Context, cfg *config.Config) error {
			return cfg.RequireUpstream()
		}},
		{name: "Ledger store reachable and loadable", run: checkLedgerStore},
		{name: "Diagnostics log writable", run: func(_ context.Context, cfg *config.Config) error {
			return checkWritableDir(cfg.Diagnostics.Path)
		}},
	}
}

func checkLedgerStore(ctx context.Context, cfg *config.Config) error {
	h, err := openLedger(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer h.Close() // nolint:errcheck // best-effort cleanup

	if err := h.Store.Ping(ctx); err != nil {
		return err
	}
	if h.Report.Reinitialized {
		observability.CLILogger.Warn("Ledger snapshot was malformed and has been reset",
			zap.String("store", h.Store.Location()))
	}
	return nil
}

// checkWritableDir verifies a file could be created next to path.
func checkWritableDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	probe, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
