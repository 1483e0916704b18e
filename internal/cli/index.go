package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-codex/internal/indexer"
)

var quietFlag bool

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the cell index from the files on disk",
	Long: `Index discovers every source and target file in the workspace, extracts
their cells and rebuilds the search index and snapshot from scratch.

The indexer:
  - Finds files with the configured source/target glob patterns
  - Parses .bible/.source text and .codex notebooks in parallel
  - Stores cells and fuzzy index documents in .codex/index.db
  - Rebuilds the full-text snapshot in .codex/cells.bleve
  - Marks every pending ledger change as processed

Examples:
  # Index the current directory
  codex index

  # Index another workspace without progress bars
  codex index -C /path/to/project --quiet
`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Disable progress bars and non-error output")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	stats, err := executeIndex(ctx, workDir, cmd.OutOrStdout(), quietFlag)
	if err != nil {
		return err
	}
	if quietFlag {
		fmt.Fprintf(cmd.OutOrStdout(), "Indexing complete: %d cells in %.2fs\n",
			stats.SourceCells+stats.TargetCells, stats.Duration.Seconds())
	}
	return nil
}

// executeIndex runs a full reindex of the workspace at root.
func executeIndex(ctx context.Context, root string, out io.Writer, quiet bool) (*indexer.ReindexStats, error) {
	ws, err := openWorkspace(root, workspaceOptions{Writer: true, Verbose: verbose})
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	stats, err := ws.Reindexer(NewCLIProgressReporter(out, quiet)).Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("indexing cancelled")
		}
		return nil, fmt.Errorf("indexing failed: %w", err)
	}
	return stats, nil
}
