// Package ledger records resource mutations and drains them in bookkept
// batches. It owns the change_records, batch_runs and debounce_state tables.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/model"
)

// DefaultRetentionDays is how long processed records are kept by CleanupOldChanges.
const DefaultRetentionDays = 7

const bumpDebounceSQL = `
	INSERT INTO debounce_state (resource_type, last_trigger_time, pending_changes)
	VALUES (?, ?, 1)
	ON CONFLICT(resource_type) DO UPDATE SET
		last_trigger_time = excluded.last_trigger_time,
		pending_changes = pending_changes + 1
`

// Ledger is the durable change log. Methods are safe to call from one logical
// writer at a time; the database pool serializes statements.
type Ledger struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New wraps a database whose schema has been created by storage.CreateSchema.
func New(db *sql.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:     db,
		logger: zerolog.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordChange appends a ChangeRecord and bumps the debounce counter for its
// resource type in the same transaction. Returns the new record id.
func (l *Ledger) RecordChange(ctx context.Context, changeType model.ChangeType, resourceType model.ResourceType, resourceID, filePath string, metadata map[string]any) (string, error) {
	if !changeType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidChangeType, changeType)
	}
	if !resourceType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidResourceType, resourceType)
	}

	var metaJSON sql.NullString
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("failed to encode change metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	id := l.newID()
	now := l.now().UnixNano()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	_, err = sq.Insert("change_records").
		Columns("id", "change_type", "resource_type", "resource_id", "file_path", "timestamp", "processed", "metadata").
		Values(id, string(changeType), string(resourceType), resourceID, filePath, now, 0, metaJSON).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to insert change record: %w", err)
	}

	_, err = tx.ExecContext(ctx, bumpDebounceSQL, string(resourceType), now)
	if err != nil {
		return "", fmt.Errorf("failed to update debounce counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit change record: %w", err)
	}

	l.logger.Debug().
		Str("id", id).
		Str("change", string(changeType)).
		Str("resource_type", string(resourceType)).
		Str("resource_id", resourceID).
		Msg("change recorded")
	return id, nil
}

// GetPendingChanges returns unprocessed records oldest first, insertion order
// breaking timestamp ties. An empty resourceType matches every type; a
// non-positive limit returns everything.
func (l *Ledger) GetPendingChanges(ctx context.Context, resourceType model.ResourceType, limit int) ([]ChangeRecord, error) {
	b := sq.Select("id", "change_type", "resource_type", "resource_id", "file_path", "timestamp", "processed", "metadata").
		From("change_records").
		Where(sq.Eq{"processed": 0}).
		OrderBy("timestamp", "rowid")
	if resourceType != "" {
		b = b.Where(sq.Eq{"resource_type": string(resourceType)})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	rows, err := b.RunWith(l.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending changes: %w", err)
	}
	defer rows.Close()

	var out []ChangeRecord
	for rows.Next() {
		rec, err := scanChangeRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending changes: %w", err)
	}
	return out, nil
}

func scanChangeRecord(rows *sql.Rows) (ChangeRecord, error) {
	var (
		rec          ChangeRecord
		changeType   string
		resourceType string
		ts           int64
		processed    int
		meta         sql.NullString
	)
	if err := rows.Scan(&rec.ID, &changeType, &resourceType, &rec.ResourceID, &rec.FilePath, &ts, &processed, &meta); err != nil {
		return ChangeRecord{}, fmt.Errorf("failed to scan change record: %w", err)
	}
	rec.ChangeType = model.ChangeType(changeType)
	rec.ResourceType = model.ResourceType(resourceType)
	rec.Timestamp = time.Unix(0, ts)
	rec.Processed = processed != 0
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
			return ChangeRecord{}, fmt.Errorf("failed to decode metadata for change %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// CountPending returns the number of unprocessed records for resourceType,
// or for every type when empty.
func (l *Ledger) CountPending(ctx context.Context, resourceType model.ResourceType) (int, error) {
	b := sq.Select("COUNT(*)").From("change_records").Where(sq.Eq{"processed": 0})
	if resourceType != "" {
		b = b.Where(sq.Eq{"resource_type": string(resourceType)})
	}
	var n int
	if err := b.RunWith(l.db).QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return n, nil
}

// MarkChangesAsProcessed flags the given records as processed. Empty input is
// a no-op and re-marking a processed record changes nothing.
func (l *Ledger) MarkChangesAsProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := sq.Update("change_records").
		Set("processed", 1).
		Where(sq.Eq{"id": ids}).
		RunWith(l.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark %d changes processed: %w", len(ids), err)
	}
	return nil
}

// ResetDebounceTracking zeroes the pending counter for resourceType.
func (l *Ledger) ResetDebounceTracking(ctx context.Context, resourceType model.ResourceType) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO debounce_state (resource_type, last_trigger_time, pending_changes)
		VALUES (?, ?, 0)
		ON CONFLICT(resource_type) DO UPDATE SET pending_changes = 0
	`, string(resourceType), l.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to reset debounce tracking for %s: %w", resourceType, err)
	}
	return nil
}

// GetDebounceCounter returns the counter for resourceType. A type that has
// never recorded a change yields a zero counter.
func (l *Ledger) GetDebounceCounter(ctx context.Context, resourceType model.ResourceType) (DebounceCounter, error) {
	counter := DebounceCounter{ResourceType: resourceType}
	var last int64
	err := l.db.QueryRowContext(ctx,
		"SELECT last_trigger_time, pending_changes FROM debounce_state WHERE resource_type = ?",
		string(resourceType),
	).Scan(&last, &counter.PendingChanges)
	if err == sql.ErrNoRows {
		return counter, nil
	}
	if err != nil {
		return counter, fmt.Errorf("failed to get debounce counter for %s: %w", resourceType, err)
	}
	counter.LastTriggerTime = time.Unix(0, last)
	return counter, nil
}

// ListDebounceCounters returns every persisted counter ordered by resource type.
func (l *Ledger) ListDebounceCounters(ctx context.Context) ([]DebounceCounter, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT resource_type, last_trigger_time, pending_changes FROM debounce_state ORDER BY resource_type")
	if err != nil {
		return nil, fmt.Errorf("failed to list debounce counters: %w", err)
	}
	defer rows.Close()

	var out []DebounceCounter
	for rows.Next() {
		var c DebounceCounter
		var rt string
		var last int64
		if err := rows.Scan(&rt, &last, &c.PendingChanges); err != nil {
			return nil, fmt.Errorf("failed to scan debounce counter: %w", err)
		}
		c.ResourceType = model.ResourceType(rt)
		c.LastTriggerTime = time.Unix(0, last)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CleanupOldChanges deletes processed records older than daysToKeep days and
// returns how many were removed. Unprocessed records are never deleted.
func (l *Ledger) CleanupOldChanges(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < 0 {
		daysToKeep = DefaultRetentionDays
	}
	cutoff := l.now().Add(-time.Duration(daysToKeep) * 24 * time.Hour).UnixNano()

	res, err := sq.Delete("change_records").
		Where(sq.Eq{"processed": 1}).
		Where(sq.Lt{"timestamp": cutoff}).
		RunWith(l.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old changes: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		l.logger.Info().Int64("deleted", n).Int("days_to_keep", daysToKeep).Msg("old change records cleaned up")
	}
	return n, nil
}
