// Package storetest opens a migrated SQLite store for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"prioritylist/api/internal/store"
)

// New returns a Store backed by a fresh SQLite file in t.TempDir().
func New(t testing.TB) *store.Store {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(ctx, store.SQLite, filepath.Join(t.TempDir(), "prioritylist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fsys, err := store.Migrations(store.SQLite)
	require.NoError(t, err)
	require.NoError(t, store.ApplyMigrations(ctx, db, store.SQLite, fsys))

	return store.New(db, store.SQLite)
}
