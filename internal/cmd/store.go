package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core/engine"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core/store"
)

// ledgerHandle bundles a loaded ledger with the store it must close.
type ledgerHandle struct {
	Ledger *engine.Ledger
	Store  store.SnapshotStore
	Report *engine.LoadReport
}

func (h *ledgerHandle) Close() error {
	if h == nil || h.Store == nil {
		return nil
	}
	return h.Store.Close()
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openLedger opens the configured store and loads the ledger from it. Loading
// writes the snapshot back, so a fresh install leaves an empty document behind.
func openLedger(ctx context.Context, cfg config.StoreConfig) (*ledgerHandle, error) {
	ss, err := store.OpenSnapshotStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ledger := engine.NewLedger(ss)
	report, err := ledger.Load(ctx)
	if err != nil {
		_ = ss.Close()
		return nil, err
	}

	return &ledgerHandle{Ledger: ledger, Store: ss, Report: report}, nil
}
