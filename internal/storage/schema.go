package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is the version written to index_metadata by CreateSchema.
const SchemaVersion = "1"

// CreateSchema creates all tables, indexes, triggers and the FTS5 shadow table
// for the cell index. Everything is created in one transaction so a partially
// initialized database is never observed.
//
// Schema includes:
//   - documents: the primary fuzzy index, keyed by (id, resource_type)
//   - documents_fts: FTS5 shadow of documents, kept in sync by triggers
//   - cells: parsed source/target cells, the corpus store for pair lookups
//   - change_records, batch_runs, debounce_state: the change ledger
//   - index_metadata: bootstrap metadata (schema version, last reindex)
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	tables := []struct {
		name string
		ddl  string
	}{
		{"documents", createDocumentsTable},
		{"documents_fts", createDocumentsFTSTable},
		{"cells", createCellsTable},
		{"change_records", createChangeRecordsTable},
		{"batch_runs", createBatchRunsTable},
		{"debounce_state", createDebounceStateTable},
		{"index_metadata", createIndexMetadataTable},
	}

	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range getAllIndexes() {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	for i, trigger := range getFTSTriggers() {
		if _, err := tx.Exec(trigger); err != nil {
			return fmt.Errorf("failed to create FTS trigger %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	bootstrapSQL := `
		INSERT INTO index_metadata (key, value, updated_at) VALUES
			('schema_version', ?, ?),
			('last_reindex', '', ?)
	`
	if _, err := tx.Exec(bootstrapSQL, SchemaVersion, now, now); err != nil {
		return fmt.Errorf("failed to bootstrap index_metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// GetSchemaVersion retrieves the schema version from index_metadata.
// Returns "0" if the table doesn't exist (new database).
func GetSchemaVersion(db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='index_metadata'").Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check index_metadata existence: %w", err)
	}
	if tableExists == 0 {
		return "0", nil
	}

	var version string
	err = db.QueryRow("SELECT value FROM index_metadata WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("schema_version key not found in index_metadata")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

// SetMetadata sets or updates a key in index_metadata.
func SetMetadata(db *sql.DB, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO index_metadata (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := db.Exec(query, key, value, now); err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadata reads a key from index_metadata. Missing keys return "".
func GetMetadata(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM index_metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}

// Table DDL constants

const createDocumentsTable = `
CREATE TABLE documents (
    id TEXT NOT NULL,                            -- Cell id (vref) or other resource id
    resource_type TEXT NOT NULL,                 -- translation_pair, source_text, ...
    content TEXT NOT NULL,                       -- Raw content as submitted
    normalized_content TEXT NOT NULL,            -- Lowercased, whitespace collapsed
    phonetic_code TEXT NOT NULL DEFAULT '',      -- Space-joined per-token Soundex codes
    ngrams TEXT NOT NULL DEFAULT '',             -- Space-joined per-token character n-grams
    word_count INTEGER NOT NULL DEFAULT 0,
    char_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,                    -- Fixed-width UTC timestamp, preserved on upsert
    updated_at TEXT NOT NULL,
    PRIMARY KEY (id, resource_type)
)
`

const createDocumentsFTSTable = `
CREATE VIRTUAL TABLE documents_fts USING fts5(
    id UNINDEXED,
    resource_type UNINDEXED,
    content,
    normalized_content,
    phonetic_code,
    ngrams,
    tokenize = 'unicode61 remove_diacritics 2'
)
`

const createCellsTable = `
CREATE TABLE cells (
    cell_id TEXT NOT NULL,                       -- Verse reference, e.g. "GEN 1:1"
    side TEXT NOT NULL CHECK(side IN ('source', 'target')),
    content TEXT NOT NULL,
    uri TEXT NOT NULL,                           -- File the cell was extracted from
    line INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (cell_id, side)
)
`

const createChangeRecordsTable = `
CREATE TABLE change_records (
    id TEXT PRIMARY KEY,
    change_type TEXT NOT NULL CHECK(change_type IN ('create', 'update', 'delete')),
    resource_type TEXT NOT NULL,
    resource_id TEXT NOT NULL,
    file_path TEXT NOT NULL DEFAULT '',
    timestamp INTEGER NOT NULL,                  -- Unix nanoseconds
    processed INTEGER NOT NULL DEFAULT 0,        -- Boolean
    metadata TEXT                                -- JSON object or NULL
)
`

const createBatchRunsTable = `
CREATE TABLE batch_runs (
    id TEXT PRIMARY KEY,
    batch_type TEXT NOT NULL,
    total_items INTEGER NOT NULL DEFAULT 0,
    processed_items INTEGER NOT NULL DEFAULT 0,
    start_time INTEGER NOT NULL,                 -- Unix nanoseconds
    end_time INTEGER,                            -- Set on completed/failed
    status TEXT NOT NULL CHECK(status IN ('pending', 'processing', 'completed', 'failed')),
    error_message TEXT
)
`

const createDebounceStateTable = `
CREATE TABLE debounce_state (
    resource_type TEXT PRIMARY KEY,
    last_trigger_time INTEGER NOT NULL,          -- Unix nanoseconds
    pending_changes INTEGER NOT NULL DEFAULT 0
)
`

const createIndexMetadataTable = `
CREATE TABLE index_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)
`

func getAllIndexes() []string {
	return []string{
		"CREATE INDEX idx_documents_resource_type ON documents(resource_type)",
		"CREATE INDEX idx_documents_normalized ON documents(normalized_content)",
		"CREATE INDEX idx_cells_uri ON cells(uri)",
		"CREATE INDEX idx_change_records_pending ON change_records(processed, resource_type, timestamp)",
		"CREATE INDEX idx_batch_runs_start ON batch_runs(start_time)",
	}
}

// getFTSTriggers keeps documents_fts row-for-row with documents. The shadow
// shares the primary table's rowid so deletes never scan the FTS table.
func getFTSTriggers() []string {
	return []string{
		`CREATE TRIGGER documents_fts_insert AFTER INSERT ON documents
		BEGIN
			DELETE FROM documents_fts WHERE rowid = NEW.rowid;
			INSERT INTO documents_fts(rowid, id, resource_type, content, normalized_content, phonetic_code, ngrams)
			VALUES (NEW.rowid, NEW.id, NEW.resource_type, NEW.content, NEW.normalized_content, NEW.phonetic_code, NEW.ngrams);
		END`,

		`CREATE TRIGGER documents_fts_update AFTER UPDATE ON documents
		BEGIN
			DELETE FROM documents_fts WHERE rowid = OLD.rowid;
			INSERT INTO documents_fts(rowid, id, resource_type, content, normalized_content, phonetic_code, ngrams)
			VALUES (NEW.rowid, NEW.id, NEW.resource_type, NEW.content, NEW.normalized_content, NEW.phonetic_code, NEW.ngrams);
		END`,

		`CREATE TRIGGER documents_fts_delete AFTER DELETE ON documents
		BEGIN
			DELETE FROM documents_fts WHERE rowid = OLD.rowid;
		END`,
	}
}
