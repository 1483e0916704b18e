package watcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/ledger"
	"github.com/mvp-joe/project-codex/internal/model"
)

// Classifier reports which side of the corpus a path belongs to.
type Classifier func(path string) (model.Side, bool)

// Recorder turns debounced file changes into ledger change records.
type Recorder struct {
	ledger   *ledger.Ledger
	classify Classifier
	logger   zerolog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(l *ledger.Ledger, classify Classifier, logger zerolog.Logger) *Recorder {
	return &Recorder{ledger: l, classify: classify, logger: logger}
}

// Record appends one change record per corpus path and returns the resource
// types that received records. Paths outside the corpus are skipped.
func (r *Recorder) Record(ctx context.Context, changes []Change) ([]model.ResourceType, error) {
	seen := make(map[model.ResourceType]bool)
	var touched []model.ResourceType

	for _, c := range changes {
		side, ok := r.classify(c.Path)
		if !ok {
			continue
		}
		rt := side.ResourceType()
		if _, err := r.ledger.RecordChange(ctx, changeTypeFor(c.Op), rt, "", c.Path, nil); err != nil {
			return touched, fmt.Errorf("failed to record change to %s: %w", c.Path, err)
		}
		if !seen[rt] {
			seen[rt] = true
			touched = append(touched, rt)
		}
	}
	return touched, nil
}

func changeTypeFor(op Op) model.ChangeType {
	switch op {
	case OpCreate:
		return model.ChangeCreate
	case OpRemove:
		return model.ChangeDelete
	default:
		return model.ChangeUpdate
	}
}

// WatchCoordinator routes FileWatcher batches through a Recorder and notifies
// a trigger function for every resource type that received changes.
type WatchCoordinator struct {
	files    FileWatcher
	recorder *Recorder
	trigger  func(model.ResourceType)
	logger   zerolog.Logger
	ctx      context.Context
}

// NewWatchCoordinator creates a new watch coordinator. trigger may be nil.
func NewWatchCoordinator(files FileWatcher, recorder *Recorder, trigger func(model.ResourceType), logger zerolog.Logger) *WatchCoordinator {
	if trigger == nil {
		trigger = func(model.ResourceType) {}
	}
	return &WatchCoordinator{
		files:    files,
		recorder: recorder,
		trigger:  trigger,
		logger:   logger,
	}
}

// Start starts the file watcher without blocking. Batches are recorded with
// ctx until it is cancelled.
func (c *WatchCoordinator) Start(ctx context.Context) error {
	c.ctx = ctx
	return c.files.Start(ctx, c.handleFileChange)
}

// Stop stops the file watcher.
func (c *WatchCoordinator) Stop() {
	if err := c.files.Stop(); err != nil {
		c.logger.Warn().Err(err).Msg("file watcher stop failed")
	}
}

// Run starts the file watcher and blocks until ctx is cancelled, then stops it.
func (c *WatchCoordinator) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	c.Stop()
	return nil
}

// WhilePaused runs fn with change delivery paused. Changes observed meanwhile
// are delivered when fn returns.
func (c *WatchCoordinator) WhilePaused(fn func() error) error {
	c.files.Pause()
	defer c.files.Resume()
	return fn()
}

// handleFileChange records a batch from the file watcher.
func (c *WatchCoordinator) handleFileChange(changes []Change) {
	if len(changes) == 0 {
		return
	}
	ctx := c.ctx
	if ctx == nil || ctx.Err() != nil {
		// Shutting down; the next full reindex picks these up.
		ctx = context.Background()
	}

	touched, err := c.recorder.Record(ctx, changes)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to record file changes")
	}
	for _, rt := range touched {
		c.trigger(rt)
	}
	c.logger.Debug().Int("changes", len(changes)).Int("resource_types", len(touched)).Msg("file changes recorded")
}
