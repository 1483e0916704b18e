package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates a file-backed SQLite database in t.TempDir() with the full
// schema (tables, indexes, FTS5 shadow, triggers). The connection is closed by
// t.Cleanup().
//
// Example:
//
//	func TestSomething(t *testing.T) {
//	    db := storage.NewTestDB(t)
//	    store := storage.NewIndexStore(db, storage.IndexStoreOptions{})
//	    // ... test code ...
//	}
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "index.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// NewTestDBMinimal creates an in-memory SQLite database without schema.
// Use it to test schema creation itself.
func NewTestDBMinimal(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// NewTestIndexStore returns an IndexStore over a fresh test database.
func NewTestIndexStore(t testing.TB) *IndexStore {
	t.Helper()
	return NewIndexStore(NewTestDB(t), IndexStoreOptions{})
}
