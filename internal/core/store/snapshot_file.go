package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core"
)

// FileSnapshotStore keeps the ledger as a JSON file on local disk.
type FileSnapshotStore struct {
	path        string
	retryConfig retry.Config
}

// NewFileSnapshotStore returns a store rooted at path.
func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{
		path: filepath.Clean(path),
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Location returns the snapshot file path.
func (f *FileSnapshotStore) Location() string {
	if f == nil {
		return ""
	}
	return f.path
}

// ReadSnapshot loads and decodes the snapshot file.
func (f *FileSnapshotStore) ReadSnapshot(ctx context.Context) (*Snapshot, error) {
	if f == nil || f.path == "" {
		return nil, fmt.Errorf("%w: file store is not initialized", ErrStorageInit)
	}

	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Snapshot{Document: emptyDocument()}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorageInit, f.path, err)
	}

	return DecodeLedgerDocument(data), nil
}

// WriteSnapshot replaces the snapshot file atomically via a temp file and
// rename, retrying transient filesystem failures.
func (f *FileSnapshotStore) WriteSnapshot(ctx context.Context, doc *core.LedgerDocument) error {
	if f == nil || f.path == "" {
		return errors.New("file store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := EncodeLedgerDocument(doc)
	if err != nil {
		return err
	}

	retryer := retry.New[struct{}](f.retryConfig)
	_, err = retryer.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f.replace(data)
	})
	return err
}

func (f *FileSnapshotStore) replace(data []byte) error {
	if err := ensureStoreDir(f.path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("replace snapshot: %w", err)
	}

	return nil
}

// Close is a no-op for file-backed stores.
func (f *FileSnapshotStore) Close() error {
	return nil
}

// Ping reports whether the snapshot directory is still present.
func (f *FileSnapshotStore) Ping(ctx context.Context) error {
	if f == nil || f.path == "" {
		return fmt.Errorf("%w: file store is not initialized", ErrStorageInit)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(filepath.Dir(f.path))
	if err != nil {
		return fmt.Errorf("stat snapshot directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot parent %s is not a directory", filepath.Dir(f.path))
	}
	return nil
}
