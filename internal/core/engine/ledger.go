package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core/store"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/metrics"
)

// Outcome is the admission decision for one request.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeAdmitted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmitted:
		return "admitted"
	default:
		return "rejected"
	}
}

var (
	// ErrNotLoaded is returned when the ledger is used before Load.
	ErrNotLoaded = errors.New("ledger not loaded")

	// ErrStorageWrite is returned alongside OutcomeAdmitted when the snapshot
	// could not be persisted. The in-memory increment is kept.
	ErrStorageWrite = errors.New("ledger persist failed")
)

// SnapshotStore persists the full ledger document.
type SnapshotStore interface {
	ReadSnapshot(ctx context.Context) (*store.Snapshot, error)
	WriteSnapshot(ctx context.Context, doc *core.LedgerDocument) error
}

// LoadReport summarizes what Load found in storage.
type LoadReport struct {
	Users         int
	Found         bool
	Reinitialized bool
	Skipped       int
}

// Ledger owns the per-user request counts and their durable snapshot.
//
// CheckAndIncrement is atomic per user id. Snapshot writes are serialized so a
// later write always includes every earlier increment.
type Ledger struct {
	store SnapshotStore

	mu      sync.Mutex
	records map[int64]*core.UserRecord
	order   []int64
	loaded  bool

	locksMu   sync.Mutex
	userLocks map[int64]*sync.Mutex

	writeMu sync.Mutex
}

// NewLedger returns an unloaded ledger backed by s.
func NewLedger(s SnapshotStore) *Ledger {
	return &Ledger{
		store:     s,
		records:   make(map[int64]*core.UserRecord),
		userLocks: make(map[int64]*sync.Mutex),
	}
}

// Load reads the persisted snapshot and writes it back before returning.
//
// Missing or malformed snapshots produce an empty ledger. Only an unusable
// storage medium is reported as an error, wrapping store.ErrStorageInit.
func (l *Ledger) Load(ctx context.Context) (*LoadReport, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("%w: ledger store is not configured", store.ErrStorageInit)
	}

	snapshot, err := l.store.ReadSnapshot(ctx)
	if err != nil {
		if errors.Is(err, store.ErrStorageInit) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", store.ErrStorageInit, err)
	}
	if snapshot == nil || snapshot.Document == nil {
		snapshot = &store.Snapshot{Document: &core.LedgerDocument{Users: []core.UserRecord{}}}
	}

	l.mu.Lock()
	l.records = make(map[int64]*core.UserRecord, len(snapshot.Document.Users))
	l.order = l.order[:0]
	for _, user := range snapshot.Document.Users {
		if _, exists := l.records[user.ID]; exists {
			continue
		}
		record := user
		l.records[user.ID] = &record
		l.order = append(l.order, user.ID)
	}
	l.loaded = true
	count := len(l.order)
	l.mu.Unlock()
	metrics.SetLedgerUsers(count)

	if err := l.persist(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorageInit, err)
	}

	return &LoadReport{
		Users:         count,
		Found:         snapshot.Found,
		Reinitialized: snapshot.Reinitialized,
		Skipped:       snapshot.Skipped,
	}, nil
}

// CheckAndIncrement admits a request for id when its count is below limit.
//
// A rejected request leaves the ledger untouched. An admitted request is
// counted and the full snapshot is written before returning; a write failure
// yields OutcomeAdmitted together with an error wrapping ErrStorageWrite.
func (l *Ledger) CheckAndIncrement(ctx context.Context, id int64, limit int) (Outcome, error) {
	if l == nil {
		return OutcomeRejected, ErrNotLoaded
	}

	lock := l.userLock(id)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	if !l.loaded {
		l.mu.Unlock()
		return OutcomeRejected, ErrNotLoaded
	}
	record, exists := l.records[id]
	current := 0
	if exists {
		current = record.RequestCount
	}
	if current >= limit {
		l.mu.Unlock()
		return OutcomeRejected, nil
	}
	if !exists {
		record = &core.UserRecord{ID: id}
		l.records[id] = record
		l.order = append(l.order, id)
	}
	record.RequestCount++
	users := len(l.order)
	l.mu.Unlock()
	if !exists {
		metrics.SetLedgerUsers(users)
	}

	// the increment is already counted; transport cancellation must not skip the write
	if err := l.persist(context.WithoutCancel(ctx)); err != nil {
		return OutcomeAdmitted, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	return OutcomeAdmitted, nil
}

// Get returns a copy of the record for id.
func (l *Ledger) Get(id int64) (core.UserRecord, bool) {
	if l == nil {
		return core.UserRecord{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[id]
	if !ok {
		return core.UserRecord{}, false
	}
	return *record, true
}

// Snapshot returns a copy of the current ledger document.
func (l *Ledger) Snapshot() *core.LedgerDocument {
	if l == nil {
		return &core.LedgerDocument{Users: []core.UserRecord{}}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.documentLocked()
}

// Loaded reports whether Load completed.
func (l *Ledger) Loaded() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// SetNote stores an operator annotation for id without touching its count.
func (l *Ledger) SetNote(ctx context.Context, id int64, note string) error {
	if l == nil {
		return ErrNotLoaded
	}

	lock := l.userLock(id)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	if !l.loaded {
		l.mu.Unlock()
		return ErrNotLoaded
	}
	record, exists := l.records[id]
	if !exists {
		record = &core.UserRecord{ID: id}
		l.records[id] = record
		l.order = append(l.order, id)
	}
	record.Note = note
	users := len(l.order)
	l.mu.Unlock()
	if !exists {
		metrics.SetLedgerUsers(users)
	}

	if err := l.persist(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

func (l *Ledger) persist(ctx context.Context) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	doc := l.documentLocked()
	l.mu.Unlock()

	return l.store.WriteSnapshot(ctx, doc)
}

func (l *Ledger) documentLocked() *core.LedgerDocument {
	users := make([]core.UserRecord, 0, len(l.order))
	for _, id := range l.order {
		if record, ok := l.records[id]; ok {
			users = append(users, *record)
		}
	}
	return &core.LedgerDocument{Users: users}
}

func (l *Ledger) userLock(id int64) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()

	lock, ok := l.userLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.userLocks[id] = lock
	}
	return lock
}
