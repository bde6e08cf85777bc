package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core"
)

const driverFile = "file"

// ErrStorageInit marks a storage medium that cannot be read or written at all.
var ErrStorageInit = errors.New("ledger storage unusable")

// SnapshotStore persists the ledger as a single document.
type SnapshotStore interface {
	ReadSnapshot(ctx context.Context) (*Snapshot, error)
	WriteSnapshot(ctx context.Context, doc *core.LedgerDocument) error
	Ping(ctx context.Context) error
	Location() string
	Close() error
}

// Snapshot is a decoded ledger document along with how it was obtained.
type Snapshot struct {
	Document *core.LedgerDocument

	// Found is false when no document existed yet.
	Found bool

	// Reinitialized is set when a document existed but had an invalid shape.
	Reinitialized bool

	// Skipped counts user entries dropped because they could not be decoded.
	Skipped int
}

// OpenSnapshotStore returns the snapshot store selected by cfg.Driver.
func OpenSnapshotStore(ctx context.Context, cfg config.StoreConfig) (SnapshotStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = driverFile
	}

	switch driver {
	case driverFile:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			return nil, fmt.Errorf("%w: store path is required", ErrStorageInit)
		}
		return NewFileSnapshotStore(path), nil
	case driverLibsql:
		db, err := Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageInit, err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %v", ErrStorageInit, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// DecodeLedgerDocument parses a persisted ledger document.
//
// Anything that is not an object with a "users" array yields an empty document
// with Reinitialized set. Individual entries that fail to decode are skipped and
// duplicate ids are merged, keeping the highest count.
func DecodeLedgerDocument(data []byte) *Snapshot {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &Snapshot{Document: emptyDocument()}
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &root); err != nil {
		return &Snapshot{Document: emptyDocument(), Found: true, Reinitialized: true}
	}

	rawUsers, ok := root["users"]
	if !ok {
		return &Snapshot{Document: emptyDocument(), Found: true, Reinitialized: true}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(rawUsers, &entries); err != nil || entries == nil {
		return &Snapshot{Document: emptyDocument(), Found: true, Reinitialized: true}
	}

	snapshot := &Snapshot{Document: emptyDocument(), Found: true}
	index := make(map[int64]int, len(entries))
	for _, raw := range entries {
		var record core.UserRecord
		if err := json.Unmarshal(raw, &record); err != nil || record.RequestCount < 0 {
			snapshot.Skipped++
			continue
		}
		if pos, seen := index[record.ID]; seen {
			existing := &snapshot.Document.Users[pos]
			if record.RequestCount > existing.RequestCount {
				existing.RequestCount = record.RequestCount
			}
			if existing.Note == "" {
				existing.Note = record.Note
			}
			continue
		}
		index[record.ID] = len(snapshot.Document.Users)
		snapshot.Document.Users = append(snapshot.Document.Users, record)
	}

	return snapshot
}

// EncodeLedgerDocument renders a document in its persisted form.
func EncodeLedgerDocument(doc *core.LedgerDocument) ([]byte, error) {
	if doc == nil {
		doc = emptyDocument()
	}
	if doc.Users == nil {
		doc = &core.LedgerDocument{Users: []core.UserRecord{}}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return append(data, '\n'), nil
}

func emptyDocument() *core.LedgerDocument {
	return &core.LedgerDocument{Users: []core.UserRecord{}}
}
