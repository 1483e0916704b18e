package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/branching"
	"github.com/mvp-joe/project-codex/internal/config"
	"github.com/mvp-joe/project-codex/internal/corpus"
	"github.com/mvp-joe/project-codex/internal/indexer"
	"github.com/mvp-joe/project-codex/internal/ledger"
	"github.com/mvp-joe/project-codex/internal/logging"
	"github.com/mvp-joe/project-codex/internal/search"
	"github.com/mvp-joe/project-codex/internal/snapshot"
	"github.com/mvp-joe/project-codex/internal/storage"
)

// LockFileName is the writer lock inside the data directory.
const LockFileName = "index.lock"

// ErrWorkspaceLocked is returned when another process holds the writer lock.
var ErrWorkspaceLocked = errors.New("workspace is locked by another codex process")

// Writers wait this long for short-lived readers to release the lock.
var (
	lockTimeout    = 2 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// workspaceOptions control how a workspace is opened.
type workspaceOptions struct {
	// Writer takes the exclusive lock. Without it the snapshot is only opened
	// when a shared lock can be taken, since bleve holds its files exclusively.
	Writer bool
	// Verbose forces debug logging.
	Verbose bool
	// LogOutput receives log lines; nil means stderr.
	LogOutput io.Writer
}

// Workspace owns the stores of one corpus directory.
type Workspace struct {
	Root     string
	Config   *config.Config
	Logger   zerolog.Logger
	DB       *sql.DB
	Cells    *storage.CellStore
	Index    *storage.IndexStore
	Ledger   *ledger.Ledger
	Reader   *corpus.FileReader
	Snapshot *snapshot.Snapshot

	lock *flock.Flock
}

// openWorkspace loads the configuration under root and opens every store.
func openWorkspace(root string, opts workspaceOptions) (*Workspace, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	cfg, err := config.LoadConfigFromDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logOpts := logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if opts.Verbose {
		logOpts.Level = "debug"
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := logging.New(out, logOpts)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{Root: root, Config: cfg, Logger: logger}

	dataDir := cfg.DataDir(root)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	ws.lock = flock.New(filepath.Join(dataDir, LockFileName))

	snapshotAllowed := false
	if opts.Writer {
		if err := acquireWriterLock(ws.lock); err != nil {
			return nil, err
		}
		snapshotAllowed = true
	} else if cfg.Storage.SnapshotEnabled {
		locked, err := ws.lock.TryRLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		snapshotAllowed = locked
		if !locked {
			logger.Debug().Msg("workspace busy, snapshot unavailable")
		}
	}

	if err := ws.open(dataDir, snapshotAllowed && cfg.Storage.SnapshotEnabled); err != nil {
		ws.Close()
		return nil, err
	}
	return ws, nil
}

// acquireWriterLock takes the exclusive lock, retrying until lockTimeout.
func acquireWriterLock(lock *flock.Flock) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if !locked {
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			return ErrWorkspaceLocked
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

func (ws *Workspace) open(dataDir string, withSnapshot bool) error {
	cfg := ws.Config

	db, err := storage.Open(cfg.DatabasePath(ws.Root), false)
	if err != nil {
		return err
	}
	ws.DB = db
	ws.Cells = storage.NewCellStore(db)
	ws.Index = storage.NewIndexStore(db, storage.IndexStoreOptions{
		NGramSize: cfg.Search.NgramSize,
		Logger:    logging.Component(ws.Logger, "index"),
	})
	ws.Ledger = ledger.New(db, ledger.WithLogger(logging.Component(ws.Logger, "ledger")))

	discovery, err := corpus.NewDiscovery(ws.Root, cfg.Paths.Source, cfg.Paths.Target, cfg.Paths.Ignore)
	if err != nil {
		return fmt.Errorf("invalid path patterns: %w", err)
	}
	ws.Reader = corpus.NewFileReader(discovery)

	if withSnapshot {
		snap, err := snapshot.Open(snapshot.Path(dataDir), logging.Component(ws.Logger, "snapshot"))
		if err != nil {
			return err
		}
		ws.Snapshot = snap
	}
	return nil
}

// Close releases the stores and the lock. It is safe on a partly opened
// workspace.
func (ws *Workspace) Close() error {
	var errs []error
	if ws.Snapshot != nil {
		errs = append(errs, ws.Snapshot.Close())
	}
	if ws.DB != nil {
		errs = append(errs, ws.DB.Close())
	}
	if ws.lock != nil {
		errs = append(errs, ws.lock.Unlock())
	}
	return errors.Join(errs...)
}

// Searcher builds the fuzzy searcher. Callers close it.
func (ws *Workspace) Searcher() (*search.Searcher, error) {
	return search.NewSearcher(ws.Index, search.SearcherOptions{
		Config:    ws.Config.SearchSettings(),
		CacheSize: ws.Config.Search.CacheSize,
		Logger:    logging.Component(ws.Logger, "search"),
	})
}

// BranchSearcher builds a branching searcher on the configured retriever. The
// snapshot retriever falls back to full-text when the snapshot is not open or
// still needs a rebuild.
func (ws *Workspace) BranchSearcher() *branching.Searcher {
	logger := logging.Component(ws.Logger, "branching")

	var retriever branching.Retriever = search.NewFullTextRetriever(ws.Index, "", logger)
	if ws.Config.Branching.Retriever == config.RetrieverSnapshot {
		if ws.Snapshot != nil && !ws.Snapshot.NeedsRebuild() {
			retriever = ws.Snapshot
		} else {
			logger.Warn().Msg("snapshot retriever unavailable, using full-text")
		}
	}
	return branching.NewSearcher(retriever, ws.Cells, logger)
}

// Processor builds the change processor, mirroring into the snapshot when open.
func (ws *Workspace) Processor() *indexer.CellProcessor {
	p := indexer.NewCellProcessor(ws.Reader, ws.Cells, ws.Index, logging.Component(ws.Logger, "processor"))
	if ws.Snapshot != nil {
		p.AttachSnapshot(ws.Snapshot)
	}
	return p
}

// Reindexer builds a full reindexer reporting to progress.
func (ws *Workspace) Reindexer(progress indexer.ProgressReporter) *indexer.Reindexer {
	return indexer.NewReindexer(ws.Reader, ws.Cells, ws.Index, indexer.ReindexerOptions{
		Ledger:   ws.Ledger,
		Snapshot: ws.Snapshot,
		Progress: progress,
		Workers:  ws.Config.Indexing.Workers,
		Logger:   logging.Component(ws.Logger, "reindex"),
	})
}

// Pump builds the ledger pump over the workspace processor.
func (ws *Workspace) Pump() *indexer.Pump {
	cfg := ws.Config.Indexing
	return indexer.NewPump(
		ws.Ledger,
		ledger.NewDebouncer(ws.Ledger, cfg.Debounce),
		ws.Processor().Process,
		indexer.PumpOptions{
			BatchSize:     cfg.BatchSize,
			PollInterval:  cfg.PollInterval,
			RetentionDays: cfg.RetentionDays,
			Logger:        logging.Component(ws.Logger, "pump"),
		},
	)
}

// Status collects index, cell and ledger counts.
func (ws *Workspace) Status(ctx context.Context) (*indexer.Status, error) {
	return indexer.CollectStatus(ctx, ws.Cells, ws.Index, ws.Ledger, ws.Snapshot)
}

// NeedsReindex reports whether the workspace has never been indexed or its
// snapshot was lost.
func (ws *Workspace) NeedsReindex() (bool, error) {
	last, err := storage.GetMetadata(ws.DB, indexer.MetaLastReindex)
	if err != nil {
		return false, err
	}
	if last == "" {
		return true, nil
	}
	return ws.Snapshot != nil && ws.Snapshot.NeedsRebuild(), nil
}
