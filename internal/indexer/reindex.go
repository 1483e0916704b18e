package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/corpus"
	"github.com/mvp-joe/project-codex/internal/ledger"
	"github.com/mvp-joe/project-codex/internal/model"
	"github.com/mvp-joe/project-codex/internal/snapshot"
	"github.com/mvp-joe/project-codex/internal/storage"
)

// MetaLastReindex is the index_metadata key holding the last full reindex time.
const MetaLastReindex = "last_reindex"

// Reindexer rebuilds the cell store, index store and snapshot from the files
// on disk.
type Reindexer struct {
	reader   *corpus.FileReader
	cells    *storage.CellStore
	index    *storage.IndexStore
	ledger   *ledger.Ledger
	snapshot *snapshot.Snapshot
	progress ProgressReporter
	workers  int
	logger   zerolog.Logger
	now      func() time.Time
}

// ReindexerOptions holds the optional collaborators of a Reindexer.
type ReindexerOptions struct {
	// Ledger, when set, has every change pending at the start of the reindex
	// marked processed once the rebuild succeeds.
	Ledger   *ledger.Ledger
	Snapshot *snapshot.Snapshot
	Progress ProgressReporter
	// Workers bounds concurrent file parsing; zero means GOMAXPROCS.
	Workers int
	Logger  zerolog.Logger
}

// NewReindexer creates a Reindexer.
func NewReindexer(reader *corpus.FileReader, cells *storage.CellStore, index *storage.IndexStore, opts ReindexerOptions) *Reindexer {
	progress := opts.Progress
	if progress == nil {
		progress = &NoOpProgressReporter{}
	}
	return &Reindexer{
		reader:   reader,
		cells:    cells,
		index:    index,
		ledger:   opts.Ledger,
		snapshot: opts.Snapshot,
		progress: progress,
		workers:  opts.Workers,
		logger:   opts.Logger,
		now:      time.Now,
	}
}

// Run discovers every corpus file, parses them in parallel and writes them
// serially into emptied stores, then rebuilds the snapshot.
func (r *Reindexer) Run(ctx context.Context) (*ReindexStats, error) {
	start := r.now()
	stats := &ReindexStats{}

	var superseded []string
	if r.ledger != nil {
		pending, err := r.ledger.GetPendingChanges(ctx, "", 0)
		if err != nil {
			return nil, err
		}
		for _, c := range pending {
			superseded = append(superseded, c.ID)
		}
	}

	r.progress.OnDiscoveryStart()
	sources, targets, err := r.reader.Discovery().Discover()
	if err != nil {
		return nil, fmt.Errorf("file discovery failed: %w", err)
	}
	stats.SourceFiles, stats.TargetFiles = len(sources), len(targets)
	r.progress.OnDiscoveryComplete(len(sources), len(targets))

	files, err := r.reader.LoadAll(ctx, append(sources, targets...), r.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	if _, err := r.cells.ClearCells(ctx); err != nil {
		return nil, err
	}
	for _, rt := range []model.ResourceType{model.ResourceSourceText, model.ResourceTranslationPair} {
		if _, err := r.index.ClearIndex(ctx, rt); err != nil {
			return nil, err
		}
	}

	r.progress.OnFileProcessingStart(len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.writeFile(ctx, f); err != nil {
			return nil, err
		}
		if f.Side == model.SideSource {
			stats.SourceCells += len(f.Cells)
		} else {
			stats.TargetCells += len(f.Cells)
		}
		r.progress.OnFileProcessed(filepath.Base(f.Path))
	}

	if r.snapshot != nil {
		r.progress.OnSnapshotStart()
		n, err := r.snapshot.Rebuild(ctx, r.index)
		if err != nil {
			return nil, err
		}
		stats.SnapshotDocs = n
	}

	if r.ledger != nil && len(superseded) > 0 {
		if err := r.ledger.MarkChangesAsProcessed(ctx, superseded); err != nil {
			return nil, err
		}
		for _, rt := range model.AllResourceTypes() {
			if err := r.ledger.ResetDebounceTracking(ctx, rt); err != nil {
				return nil, err
			}
		}
		stats.SupersededChanges = len(superseded)
	}

	if err := storage.SetMetadata(r.index.DB(), MetaLastReindex, r.now().UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}

	stats.Duration = r.now().Sub(start)
	r.logger.Info().
		Int("source_files", stats.SourceFiles).
		Int("target_files", stats.TargetFiles).
		Int("source_cells", stats.SourceCells).
		Int("target_cells", stats.TargetCells).
		Dur("duration", stats.Duration).
		Msg("full reindex complete")
	r.progress.OnComplete(stats)
	return stats, nil
}

func (r *Reindexer) writeFile(ctx context.Context, f *corpus.File) error {
	if _, err := r.cells.ReplaceCellsForURI(ctx, f.Side, f.Path, f.Cells); err != nil {
		return err
	}
	rt := f.Side.ResourceType()
	docs := make([]storage.DocumentInput, 0, len(f.Cells))
	for _, c := range f.Cells {
		docs = append(docs, storage.DocumentInput{ID: c.CellID, ResourceType: rt, Content: c.Content})
	}
	if err := r.index.AddBatch(ctx, docs); err != nil {
		return fmt.Errorf("failed to index %s: %w", f.Path, err)
	}
	return nil
}
