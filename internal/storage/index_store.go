package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/fuzzy"
	"github.com/mvp-joe/project-codex/internal/model"
)

const (
	maxWriteAttempts = 3
	retryBaseDelay   = 50 * time.Millisecond
)

// IndexStoreOptions configures an IndexStore.
type IndexStoreOptions struct {
	// NGramSize is the character n-gram width stored for each document.
	// Zero means fuzzy.DefaultNGramSize.
	NGramSize int
	Logger    zerolog.Logger
	// Now overrides the clock used for created_at/updated_at.
	Now func() time.Time
}

// IndexStore owns the documents table and its FTS5 shadow. All writes go
// through the primary table; the shadow is maintained by triggers.
type IndexStore struct {
	db        *sql.DB
	ngramSize int
	logger    zerolog.Logger
	now       func() time.Time
}

// NewIndexStore wraps an open database whose schema has been created.
func NewIndexStore(db *sql.DB, opts IndexStoreOptions) *IndexStore {
	if opts.NGramSize <= 0 {
		opts.NGramSize = fuzzy.DefaultNGramSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &IndexStore{
		db:        db,
		ngramSize: opts.NGramSize,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// DB returns the underlying database handle.
func (s *IndexStore) DB() *sql.DB {
	return s.db
}

// NGramSize returns the n-gram width used for stored documents.
func (s *IndexStore) NGramSize() int {
	return s.ngramSize
}

// MetaIndexGeneration is the index_metadata key holding the write counter.
const MetaIndexGeneration = "index_generation"

// Generation returns the persisted write counter. It increases with every
// committed write from any connection, so callers in other processes can use
// it to invalidate anything derived from index contents.
func (s *IndexStore) Generation(ctx context.Context) (uint64, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM index_metadata WHERE key = ?", MetaIndexGeneration).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read index generation: %w", err)
	}
	gen, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid index generation %q: %w", value, err)
	}
	return gen, nil
}

const bumpGenerationSQL = `
	INSERT INTO index_metadata (key, value, updated_at) VALUES (?, '1', ?)
	ON CONFLICT(key) DO UPDATE SET
		value = CAST(CAST(value AS INTEGER) + 1 AS TEXT),
		updated_at = excluded.updated_at
`

// bumpGeneration advances the write counter inside tx so it commits with the
// write it describes.
func (s *IndexStore) bumpGeneration(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, bumpGenerationSQL, MetaIndexGeneration, formatTime(s.now())); err != nil {
		return fmt.Errorf("failed to bump index generation: %w", err)
	}
	return nil
}

const upsertDocumentSQL = `
	INSERT INTO documents (
		id, resource_type, content, normalized_content, phonetic_code, ngrams,
		word_count, char_count, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id, resource_type) DO UPDATE SET
		content = excluded.content,
		normalized_content = excluded.normalized_content,
		phonetic_code = excluded.phonetic_code,
		ngrams = excluded.ngrams,
		word_count = excluded.word_count,
		char_count = excluded.char_count,
		updated_at = excluded.updated_at
`

// AddToIndex inserts or replaces a single document. The shadow row is written
// by trigger in the same statement.
func (s *IndexStore) AddToIndex(ctx context.Context, doc DocumentInput) error {
	return s.AddBatch(ctx, []DocumentInput{doc})
}

// AddBatch upserts all documents in one transaction. Either every document is
// written or none is. Busy/locked errors are retried a bounded number of times.
func (s *IndexStore) AddBatch(ctx context.Context, docs []DocumentInput) error {
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document id must not be empty")
		}
		if !doc.ResourceType.Valid() {
			return fmt.Errorf("document %s: invalid resource type %q", doc.ID, doc.ResourceType)
		}
	}

	return withRetry(ctx, func() error {
		return s.addBatchOnce(ctx, docs)
	})
}

func (s *IndexStore) addBatchOnce(ctx context.Context, docs []DocumentInput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	stmt, err := tx.PrepareContext(ctx, upsertDocumentSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(s.now())
	for _, doc := range docs {
		d := fuzzy.Derive(doc.Content, s.ngramSize)
		_, err := stmt.ExecContext(ctx,
			doc.ID, string(doc.ResourceType), doc.Content, d.Normalized, d.PhoneticCode, d.NGrams,
			d.WordCount, d.CharCount, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
		}
	}
	if err := s.bumpGeneration(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RemoveFromIndex deletes one document. Removing a missing document is not an error.
func (s *IndexStore) RemoveFromIndex(ctx context.Context, id string, resourceType model.ResourceType) error {
	return s.RemoveBatch(ctx, []DocumentKey{{ID: id, ResourceType: resourceType}})
}

// DocumentKey identifies a document in the primary index.
type DocumentKey struct {
	ID           string
	ResourceType model.ResourceType
}

// RemoveBatch deletes the given documents in one transaction.
func (s *IndexStore) RemoveBatch(ctx context.Context, keys []DocumentKey) error {
	if len(keys) == 0 {
		return nil
	}
	err := withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, "DELETE FROM documents WHERE id = ? AND resource_type = ?")
		if err != nil {
			return fmt.Errorf("failed to prepare delete: %w", err)
		}
		defer stmt.Close()

		for _, k := range keys {
			if _, err := stmt.ExecContext(ctx, k.ID, string(k.ResourceType)); err != nil {
				return fmt.Errorf("failed to delete document %s: %w", k.ID, err)
			}
		}
		if err := s.bumpGeneration(ctx, tx); err != nil {
			return err
		}
		return tx.Commit()
	})
	return err
}

// ClearIndex removes every document of the given resource type, or every
// document when resourceType is empty. Returns the number of rows removed.
func (s *IndexStore) ClearIndex(ctx context.Context, resourceType model.ResourceType) (int64, error) {
	builder := sq.Delete("documents")
	if resourceType != "" {
		builder = builder.Where(sq.Eq{"resource_type": string(resourceType)})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := builder.RunWith(tx).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear index: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := s.bumpGeneration(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit clear: %w", err)
	}
	return n, nil
}

// GetIndexStats summarizes the primary index and the shadow row count.
func (s *IndexStore) GetIndexStats(ctx context.Context) (*IndexStats, error) {
	stats := &IndexStats{EntriesByType: make(map[model.ResourceType]int)}

	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(word_count), 0), COALESCE(AVG(char_count), 0),
		       MIN(created_at), MAX(updated_at)
		FROM documents
	`).Scan(&stats.TotalEntries, &stats.AverageWordCount, &stats.AverageCharCount, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to query index stats: %w", err)
	}
	if oldest.Valid {
		t := parseTime(oldest.String)
		stats.OldestEntry = &t
	}
	if newest.Valid {
		t := parseTime(newest.String)
		stats.NewestEntry = &t
	}

	rows, err := s.db.QueryContext(ctx, "SELECT resource_type, COUNT(*) FROM documents GROUP BY resource_type")
	if err != nil {
		return nil, fmt.Errorf("failed to query entries by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rt string
		var count int
		if err := rows.Scan(&rt, &count); err != nil {
			return nil, fmt.Errorf("failed to scan entries by type: %w", err)
		}
		stats.EntriesByType[model.ResourceType(rt)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries by type: %w", err)
	}

	stats.ShadowEntries, err = s.CountShadow(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// CountDocuments returns the number of rows in the primary index.
func (s *IndexStore) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// CountShadow returns the number of rows in the FTS5 shadow.
func (s *IndexStore) CountShadow(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents_fts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count shadow rows: %w", err)
	}
	return n, nil
}

// PopulateShadowFromPrimary rebuilds the FTS5 shadow from the primary table in
// one transaction. Returns the number of shadow rows afterwards.
func (s *IndexStore) PopulateShadowFromPrimary(ctx context.Context) (int, error) {
	var count int
	err := withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, "DELETE FROM documents_fts"); err != nil {
			return fmt.Errorf("failed to clear shadow: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents_fts(rowid, id, resource_type, content, normalized_content, phonetic_code, ngrams)
			SELECT rowid, id, resource_type, content, normalized_content, phonetic_code, ngrams
			FROM documents
		`)
		if err != nil {
			return fmt.Errorf("failed to populate shadow: %w", err)
		}

		var primary int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&primary); err != nil {
			return fmt.Errorf("failed to count documents: %w", err)
		}
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents_fts").Scan(&count); err != nil {
			return fmt.Errorf("failed to count shadow rows: %w", err)
		}
		if primary != count {
			return fmt.Errorf("%w: %d primary rows, %d shadow rows", ErrIndexInconsistent, primary, count)
		}
		if err := s.bumpGeneration(ctx, tx); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// EnsureShadow rebuilds the shadow when it is empty but the primary index is
// not, which happens after a cold start on a database written without the
// triggers or after the shadow was dropped. Reports whether a rebuild ran.
func (s *IndexStore) EnsureShadow(ctx context.Context) (bool, error) {
	shadow, err := s.CountShadow(ctx)
	if err != nil {
		return false, err
	}
	if shadow > 0 {
		return false, nil
	}
	primary, err := s.CountDocuments(ctx)
	if err != nil {
		return false, err
	}
	if primary == 0 {
		return false, nil
	}

	s.logger.Warn().Int("documents", primary).Msg("full-text shadow is empty, rebuilding from primary index")
	n, err := s.PopulateShadowFromPrimary(ctx)
	if err != nil {
		return false, err
	}
	s.logger.Info().Int("rows", n).Msg("full-text shadow rebuilt")
	return true, nil
}

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// runs out of attempts.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		delay := retryBaseDelay << attempt
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxWriteAttempts, err)
}
