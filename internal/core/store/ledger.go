package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core"
)

// ReadSnapshot returns the ledger document stored in the single snapshot row.
func (s *Store) ReadSnapshot(ctx context.Context) (*Snapshot, error) {
	if s == nil || s.DB == nil {
		return nil, fmt.Errorf("%w: store is not initialized", ErrStorageInit)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var document string
	row := s.DB.QueryRowContext(ctx, `SELECT document FROM ledger_snapshot WHERE id = 1`)
	if err := row.Scan(&document); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Snapshot{Document: emptyDocument()}, nil
		}
		return nil, fmt.Errorf("%w: fetch ledger snapshot: %v", ErrStorageInit, err)
	}

	return DecodeLedgerDocument([]byte(document)), nil
}

// WriteSnapshot replaces the snapshot row.
func (s *Store) WriteSnapshot(ctx context.Context, doc *core.LedgerDocument) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	data, err := EncodeLedgerDocument(doc)
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO ledger_snapshot (id, document, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`, string(data), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store ledger snapshot: %w", err)
	}

	return nil
}
