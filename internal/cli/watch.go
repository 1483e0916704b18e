package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/project-codex/internal/indexer"
	"github.com/mvp-joe/project-codex/internal/logging"
	"github.com/mvp-joe/project-codex/internal/watcher"
)

var watchQuietFlag bool

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index fresh while files change",
	Long: `Watch records every change to a source or target file in the change
ledger and applies the changes in debounced batches.

On start the workspace is fully indexed if it never was, or if the snapshot
was lost. Changes made while that runs are applied once it finishes.

Examples:
  codex watch
  codex watch -C /path/to/project -v
`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVarP(&watchQuietFlag, "quiet", "q", false, "Disable progress bars and non-error output")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	return executeWatch(ctx, workDir, cmd.OutOrStdout(), watchQuietFlag)
}

// executeWatch watches the workspace at root until ctx is cancelled.
func executeWatch(ctx context.Context, root string, out io.Writer, quiet bool) error {
	ws, err := openWorkspace(root, workspaceOptions{Writer: true, Verbose: verbose})
	if err != nil {
		return err
	}
	defer ws.Close()

	pump := ws.Pump()
	coord, err := newWatchCoordinator(ws, pump)
	if err != nil {
		return err
	}

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer coord.Stop()

	if err := initialIndex(ctx, ws, coord, NewCLIProgressReporter(out, quiet)); err != nil {
		return err
	}

	if removed, err := pump.Cleanup(ctx); err != nil {
		ws.Logger.Warn().Err(err).Msg("ledger cleanup failed")
	} else if removed > 0 {
		ws.Logger.Info().Int64("removed", removed).Msg("old ledger changes removed")
	}

	// Changes recorded by an earlier session that never drained.
	pump.ForceTrigger("")

	ws.Logger.Info().Str("root", ws.Root).Msg("watching for changes")
	if err := pump.Run(ctx); err != nil {
		return err
	}
	ws.Logger.Info().Msg("watch mode stopped")
	return nil
}

// newWatchCoordinator wires a recursive file watcher over the workspace to
// the ledger, force-triggering the pump for every touched resource type.
func newWatchCoordinator(ws *Workspace, pump *indexer.Pump) (*watcher.WatchCoordinator, error) {
	logger := logging.Component(ws.Logger, "watcher")
	discovery := ws.Reader.Discovery()

	files, err := watcher.NewFileWatcher([]string{ws.Root}, watcher.Options{
		Extensions: ws.Config.WatchExtensions(),
		Ignore:     discovery.Ignored,
		Debounce:   ws.Config.Indexing.WatchDebounce,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	recorder := watcher.NewRecorder(ws.Ledger, discovery.Classify, logger)
	return watcher.NewWatchCoordinator(files, recorder, pump.ForceTrigger, logger), nil
}

// initialIndex runs a full reindex with change delivery paused when the
// workspace needs one.
func initialIndex(ctx context.Context, ws *Workspace, coord *watcher.WatchCoordinator, progress indexer.ProgressReporter) error {
	needed, err := ws.NeedsReindex()
	if err != nil {
		return err
	}
	if !needed {
		return nil
	}

	ws.Logger.Info().Msg("performing initial indexing")
	return coord.WhilePaused(func() error {
		if _, err := ws.Reindexer(progress).Run(ctx); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("indexing cancelled")
			}
			return fmt.Errorf("initial indexing failed: %w", err)
		}
		return nil
	})
}

// runWatchInBackground runs the pump and file watcher for the MCP server.
func runWatchInBackground(ctx context.Context, g *errgroup.Group, ws *Workspace) error {
	pump := ws.Pump()
	coord, err := newWatchCoordinator(ws, pump)
	if err != nil {
		return err
	}
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	if err := initialIndex(ctx, ws, coord, &indexer.NoOpProgressReporter{}); err != nil {
		coord.Stop()
		return err
	}

	pump.ForceTrigger("")
	g.Go(func() error {
		defer coord.Stop()
		return pump.Run(ctx)
	})
	return nil
}
