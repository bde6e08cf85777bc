package handlers

import (
	"context"
	"errors"
)

var (
	errLedgerNotLoaded = errors.New("ledger not loaded")
	errStoreMissing    = errors.New("ledger store not configured")
)

// LedgerState is the part of the ledger the readiness check needs.
type LedgerState interface {
	Loaded() bool
}

// StorePinger is implemented by snapshot stores.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// LedgerChecker fails until the ledger has been loaded and persisted once.
func LedgerChecker(ledger LedgerState) HealthChecker {
	return CheckerFunc(func(ctx context.Context) error {
		if ledger == nil || !ledger.Loaded() {
			return errLedgerNotLoaded
		}
		return nil
	})
}

// StoreChecker fails when the snapshot store cannot be reached.
func StoreChecker(store StorePinger) HealthChecker {
	return CheckerFunc(func(ctx context.Context) error {
		if store == nil {
			return errStoreMissing
		}
		return store.Ping(ctx)
	})
}
