package storage

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a document or cell does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIndexInconsistent is returned when the shadow table row count does not
	// match the primary table after a rebuild.
	ErrIndexInconsistent = errors.New("full-text shadow is inconsistent with primary index")
)

// isTransient reports whether err is a SQLite busy/locked error worth retrying.
func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
