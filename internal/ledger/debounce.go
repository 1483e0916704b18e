package ledger

import (
	"context"
	"time"

	"github.com/mvp-joe/project-codex/internal/model"
)

// DefaultDebounceWindow is how long a resource type must stay quiet before
// its pending changes are drained.
const DefaultDebounceWindow = 2 * time.Second

// Debouncer decides when the pending changes of a resource type are ready to
// drain. State lives in the persisted debounce counters so it survives
// restarts; the Debouncer itself only holds the window and the clock.
type Debouncer struct {
	ledger *Ledger
	window time.Duration
	now    func() time.Time
}

// NewDebouncer creates a Debouncer over l. A non-positive window means
// DefaultDebounceWindow.
func NewDebouncer(l *Ledger, window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{ledger: l, window: window, now: l.now}
}

// Window returns the quiet period.
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Trigger records a change event without a ledger record, for callers that
// only need to restart the quiet period.
func (d *Debouncer) Trigger(ctx context.Context, resourceType model.ResourceType) error {
	_, err := d.ledger.db.ExecContext(ctx, bumpDebounceSQL, string(resourceType), d.now().UnixNano())
	return err
}

// ShouldFire reports whether resourceType has pending changes and has been
// quiet for at least the window.
func (d *Debouncer) ShouldFire(ctx context.Context, resourceType model.ResourceType) (bool, error) {
	counter, err := d.ledger.GetDebounceCounter(ctx, resourceType)
	if err != nil {
		return false, err
	}
	if counter.PendingChanges == 0 {
		return false, nil
	}
	return d.now().Sub(counter.LastTriggerTime) >= d.window, nil
}

// Reset zeroes the pending counter for resourceType.
func (d *Debouncer) Reset(ctx context.Context, resourceType model.ResourceType) error {
	return d.ledger.ResetDebounceTracking(ctx, resourceType)
}
