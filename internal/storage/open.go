package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

// Open opens the index database at dbPath, creating the parent directory and
// schema on first use. Read-only opens require an existing database.
//
// The pool is limited to a single connection: SQLite serializes writers anyway
// and a single connection keeps ":memory:" databases coherent.
func Open(dbPath string, readOnly bool) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if readOnly {
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				return nil, fmt.Errorf("database not found at %s, run 'codex index' first", dbPath)
			}
		} else if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_busy_timeout=5000"
	if readOnly {
		dsn += "&mode=ro"
	} else if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if readOnly {
		return db, nil
	}

	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the schema on a fresh database and rejects databases
// written by an incompatible schema version.
func EnsureSchema(db *sql.DB) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	switch version {
	case "0":
		if err := CreateSchema(db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	case SchemaVersion:
	default:
		return fmt.Errorf("unsupported schema version %s (expected %s), delete the index and run 'codex index'", version, SchemaVersion)
	}
	return nil
}
