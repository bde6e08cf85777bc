//go:build cgo

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core"
)

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())
}

func TestLibsqlSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	ss, err := OpenSnapshotStore(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	defer ss.Close() // nolint:errcheck // best-effort cleanup

	snap, err := ss.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.False(t, snap.Found)

	doc := &core.LedgerDocument{Users: []core.UserRecord{{ID: 42, RequestCount: 2}}}
	require.NoError(t, ss.WriteSnapshot(ctx, doc))

	doc.Users[0].RequestCount = 3
	require.NoError(t, ss.WriteSnapshot(ctx, doc))

	snap, err = ss.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, snap.Found)
	require.Equal(t, []core.UserRecord{{ID: 42, RequestCount: 3}}, snap.Document.Users)
}
