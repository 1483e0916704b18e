package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/project-codex/internal/model"
)

// CreateBatchProcessingRecord starts a BatchRun in the pending state and
// returns its id.
func (l *Ledger) CreateBatchProcessingRecord(ctx context.Context, batchType string, totalItems int) (string, error) {
	id := l.newID()
	_, err := sq.Insert("batch_runs").
		Columns("id", "batch_type", "total_items", "processed_items", "start_time", "status").
		Values(id, batchType, totalItems, 0, l.now().UnixNano(), string(BatchPending)).
		RunWith(l.db).ExecContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create batch run: %w", err)
	}
	return id, nil
}

// UpdateBatchProcessingProgress records progress on a batch. An empty status
// keeps the current one. EndTime is set when the batch enters completed or
// failed; any update to a terminal batch returns ErrInvalidTransition.
func (l *Ledger) UpdateBatchProcessingProgress(ctx context.Context, batchID string, processedItems int, status BatchStatus, errorMessage string) error {
	if status != "" && !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM batch_runs WHERE id = ?", batchID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if err != nil {
		return fmt.Errorf("failed to load batch run %s: %w", batchID, err)
	}

	from := BatchStatus(current)
	to := status
	if to == "" {
		to = from
	}
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s → %s for batch %s", ErrInvalidTransition, from, to, batchID)
	}

	update := sq.Update("batch_runs").
		Set("processed_items", processedItems).
		Set("status", string(to)).
		Where(sq.Eq{"id": batchID})
	if errorMessage != "" {
		update = update.Set("error_message", errorMessage)
	}
	if to.Terminal() {
		update = update.Set("end_time", l.now().UnixNano())
	}
	if _, err := update.RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to update batch run %s: %w", batchID, err)
	}
	return tx.Commit()
}

// GetBatchRun loads one batch run.
func (l *Ledger) GetBatchRun(ctx context.Context, batchID string) (*BatchRun, error) {
	runs, err := l.queryBatchRuns(ctx, sq.Eq{"id": batchID}, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	return &runs[0], nil
}

// ListBatchRuns returns the most recent batch runs, newest first.
func (l *Ledger) ListBatchRuns(ctx context.Context, limit int) ([]BatchRun, error) {
	return l.queryBatchRuns(ctx, nil, limit)
}

func (l *Ledger) queryBatchRuns(ctx context.Context, where sq.Sqlizer, limit int) ([]BatchRun, error) {
	b := sq.Select("id", "batch_type", "total_items", "processed_items", "start_time", "end_time", "status", "error_message").
		From("batch_runs").
		OrderBy("start_time DESC", "rowid DESC")
	if where != nil {
		b = b.Where(where)
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	rows, err := b.RunWith(l.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch runs: %w", err)
	}
	defer rows.Close()

	var out []BatchRun
	for rows.Next() {
		var (
			run      BatchRun
			start    int64
			end      sql.NullInt64
			status   string
			errorMsg sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.BatchType, &run.TotalItems, &run.ProcessedItems, &start, &end, &status, &errorMsg); err != nil {
			return nil, fmt.Errorf("failed to scan batch run: %w", err)
		}
		run.StartTime = time.Unix(0, start)
		if end.Valid {
			t := time.Unix(0, end.Int64)
			run.EndTime = &t
		}
		run.Status = BatchStatus(status)
		run.ErrorMessage = errorMsg.String
		out = append(out, run)
	}
	return out, rows.Err()
}

// BatchResult summarizes one ProcessPendingChangesBatch call.
type BatchResult struct {
	BatchID   string
	Processed int
}

// ProcessPendingChangesBatch drains up to batchSize pending records of
// resourceType (every type when empty) through processor:
//
//  1. pull pending records; return an empty result when there are none
//  2. create a BatchRun and move it to processing
//  3. call processor
//  4. mark the records processed and reset the debounce counters they touched
//  5. complete the BatchRun
//
// When processor fails the BatchRun is marked failed with the error message,
// the records stay pending and the error is returned.
func (l *Ledger) ProcessPendingChangesBatch(ctx context.Context, resourceType model.ResourceType, batchSize int, processor Processor) (BatchResult, error) {
	changes, err := l.GetPendingChanges(ctx, resourceType, batchSize)
	if err != nil {
		return BatchResult{}, err
	}
	if len(changes) == 0 {
		return BatchResult{}, l.clearIdleCounters(ctx, resourceType)
	}

	batchType := string(resourceType)
	if batchType == "" {
		batchType = "all"
	}
	batchID, err := l.CreateBatchProcessingRecord(ctx, batchType, len(changes))
	if err != nil {
		return BatchResult{}, err
	}
	result := BatchResult{BatchID: batchID}

	if err := l.UpdateBatchProcessingProgress(ctx, batchID, 0, BatchProcessing, ""); err != nil {
		return result, err
	}

	if err := processor(ctx, changes); err != nil {
		l.logger.Error().Err(err).Str("batch", batchID).Int("changes", len(changes)).Msg("batch processing failed")
		return result, fmt.Errorf("batch %s failed: %w", batchID, l.failBatch(ctx, batchID, 0, err))
	}

	ids := make([]string, len(changes))
	touched := make(map[model.ResourceType]bool)
	for i, c := range changes {
		ids[i] = c.ID
		touched[c.ResourceType] = true
	}

	if err := l.MarkChangesAsProcessed(ctx, ids); err != nil {
		return result, l.failBatch(ctx, batchID, 0, err)
	}
	for _, rt := range model.AllResourceTypes() {
		if !touched[rt] {
			continue
		}
		if err := l.ResetDebounceTracking(ctx, rt); err != nil {
			return result, l.failBatch(ctx, batchID, len(changes), err)
		}
	}

	if err := l.UpdateBatchProcessingProgress(ctx, batchID, len(changes), BatchCompleted, ""); err != nil {
		return result, err
	}
	result.Processed = len(changes)

	l.logger.Debug().Str("batch", batchID).Str("type", batchType).Int("changes", len(changes)).Msg("batch completed")
	return result, nil
}

// failBatch records err on the batch and returns it, joined with any error
// from recording the failure.
func (l *Ledger) failBatch(ctx context.Context, batchID string, processedItems int, err error) error {
	if uerr := l.UpdateBatchProcessingProgress(ctx, batchID, processedItems, BatchFailed, err.Error()); uerr != nil {
		return errors.Join(err, fmt.Errorf("failed to record failure of batch %s: %w", batchID, uerr))
	}
	return err
}

// clearIdleCounters zeroes debounce counters that have nothing pending in the
// ledger, so a bare Trigger cannot keep a resource type firing. An empty
// resourceType covers every type.
func (l *Ledger) clearIdleCounters(ctx context.Context, resourceType model.ResourceType) error {
	q := sq.Update("debounce_state").
		Set("pending_changes", 0).
		Where(sq.Gt{"pending_changes": 0}).
		Where("NOT EXISTS (SELECT 1 FROM change_records c WHERE c.processed = 0 AND c.resource_type = debounce_state.resource_type)")
	if resourceType != "" {
		q = q.Where(sq.Eq{"resource_type": string(resourceType)})
	}
	if _, err := q.RunWith(l.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to clear idle debounce counters: %w", err)
	}
	return nil
}
