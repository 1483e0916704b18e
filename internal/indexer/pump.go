package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/ledger"
	"github.com/mvp-joe/project-codex/internal/model"
)

const (
	DefaultBatchSize    = 100
	DefaultPollInterval = 500 * time.Millisecond
)

// PumpOptions configures a Pump.
type PumpOptions struct {
	// ResourceTypes are the types the pump drains; empty means all.
	ResourceTypes []model.ResourceType
	BatchSize     int
	PollInterval  time.Duration
	// RetentionDays bounds how long processed changes are kept; zero means
	// ledger.DefaultRetentionDays.
	RetentionDays int
	Logger        zerolog.Logger
}

// Pump moves pending ledger changes through a processor. Tick drains every
// resource type whose debounce window has elapsed or that was force
// triggered; Run calls Tick on a ticker until cancelled.
type Pump struct {
	ledger    *ledger.Ledger
	debouncer *ledger.Debouncer
	processor ledger.Processor
	opts      PumpOptions

	mu     sync.Mutex
	forced map[model.ResourceType]bool
	wake   chan struct{}
}

// NewPump creates a pump. Zero option values take the defaults.
func NewPump(l *ledger.Ledger, d *ledger.Debouncer, processor ledger.Processor, opts PumpOptions) *Pump {
	if len(opts.ResourceTypes) == 0 {
		opts.ResourceTypes = model.AllResourceTypes()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RetentionDays == 0 {
		opts.RetentionDays = ledger.DefaultRetentionDays
	}
	return &Pump{
		ledger:    l,
		debouncer: d,
		processor: processor,
		opts:      opts,
		forced:    make(map[model.ResourceType]bool),
		wake:      make(chan struct{}, 1),
	}
}

// ForceTrigger makes the next Tick drain resourceType regardless of its
// debounce window. An empty resourceType forces every configured type.
func (p *Pump) ForceTrigger(resourceType model.ResourceType) {
	p.mu.Lock()
	if resourceType == "" {
		for _, rt := range p.opts.ResourceTypes {
			p.forced[rt] = true
		}
	} else {
		p.forced[resourceType] = true
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pump) takeForced(resourceType model.ResourceType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.forced[resourceType]
	delete(p.forced, resourceType)
	return f
}

// Tick drains each ready resource type and returns the number of changes
// processed. A failing type does not stop the others; their errors are
// joined.
func (p *Pump) Tick(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for _, rt := range p.opts.ResourceTypes {
		if err := ctx.Err(); err != nil {
			return total, errors.Join(append(errs, err)...)
		}

		ready := p.takeForced(rt)
		if !ready {
			fire, err := p.debouncer.ShouldFire(ctx, rt)
			if err != nil {
				errs = append(errs, fmt.Errorf("debounce check for %s: %w", rt, err))
				continue
			}
			ready = fire
		}
		if !ready {
			continue
		}

		n, err := p.Drain(ctx, rt)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("drain %s: %w", rt, err))
		}
	}
	return total, errors.Join(errs...)
}

// Drain processes pending changes of resourceType in BatchSize chunks until
// none remain. Cancellation is checked between chunks.
func (p *Pump) Drain(ctx context.Context, resourceType model.ResourceType) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := p.ledger.ProcessPendingChangesBatch(ctx, resourceType, p.opts.BatchSize, p.processor)
		if err != nil {
			return total, err
		}
		if res.Processed == 0 {
			break
		}
		total += res.Processed
	}
	if total > 0 {
		p.opts.Logger.Info().Str("resource_type", string(resourceType)).Int("changes", total).Msg("changes drained")
	}
	return total, nil
}

// Run ticks every PollInterval, or immediately after ForceTrigger, until ctx
// is cancelled. Tick errors are logged and retried on the next tick.
func (p *Pump) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-p.wake:
		}
		if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			p.opts.Logger.Error().Err(err).Msg("reindex tick failed")
		}
	}
}

// Cleanup deletes processed changes older than the retention period.
func (p *Pump) Cleanup(ctx context.Context) (int64, error) {
	return p.ledger.CleanupOldChanges(ctx, p.opts.RetentionDays)
}
