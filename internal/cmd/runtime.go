package cmd

import (
	"context"
	"errors"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core/engine"
)

// relayRuntime owns everything a relay needs at runtime.
type relayRuntime struct {
	ledger      *ledgerHandle
	diagnostics *ailink.DiagnosticLog
	upstream    *ailink.Upstream
	relay       *engine.Relay
}

// startRelay brings the relay up in dependency order: ledger (loaded and
// persisted), diagnostics log, upstream client.
func startRelay(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*relayRuntime, error) {
	if err := cfg.RequireUpstream(); err != nil {
		return nil, err
	}

	rt := &relayRuntime{}

	ledger, err := openLedger(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	rt.ledger = ledger
	if logger != nil {
		fields := []zap.Field{
			zap.String("store", ledger.Store.Location()),
			zap.Int("users", ledger.Report.Users),
			zap.Bool("found", ledger.Report.Found),
		}
		if ledger.Report.Reinitialized {
			logger.Warn("Ledger snapshot was malformed and has been reset", fields...)
		} else {
			logger.Info("Ledger loaded", fields...)
		}
		if ledger.Report.Skipped > 0 {
			logger.Warn("Ledger entries skipped during load", zap.Int("skipped", ledger.Report.Skipped))
		}
	}

	diagnostics, err := ailink.OpenDiagnosticLog(cfg.Diagnostics.Path, cfg.Diagnostics.QueueSize, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.diagnostics = diagnostics

	upstream, err := ailink.NewUpstream(cfg.AILink, nil)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.upstream = upstream

	rt.relay = &engine.Relay{
		Ledger:          ledger.Ledger,
		Upstream:        upstream,
		Sink:            diagnostics,
		Logger:          logger,
		Limit:           cfg.Limits.MaxRequestsPerUser,
		UpstreamTimeout: cfg.AILink.Timeout,
	}
	return rt, nil
}

// Close flushes diagnostics and releases the store.
func (rt *relayRuntime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	if rt.diagnostics != nil {
		errs = append(errs, rt.diagnostics.Close())
	}
	if rt.ledger != nil {
		errs = append(errs, rt.ledger.Close())
	}
	return errors.Join(errs...)
}
