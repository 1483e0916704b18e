package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/project-codex/internal/logging"
	"github.com/mvp-joe/project-codex/internal/mcp"
)

var mcpWatchFlag bool

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for corpus search",
	Long: `Start the Model Context Protocol (MCP) server that lets LLM assistants
search the translation corpus.

The MCP server:
- Serves codex_search, codex_branch_search and codex_index_stats
- Communicates via stdio (standard MCP transport); logs go to stderr
- With --watch, also keeps the index fresh like 'codex watch'

Example:
  codex mcp --watch`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().BoolVarP(&mcpWatchFlag, "watch", "w", false, "Watch files and reindex changes while serving")
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	return executeMCP(ctx, workDir, mcpWatchFlag)
}

func executeMCP(ctx context.Context, root string, watch bool) error {
	ws, err := openWorkspace(root, workspaceOptions{Writer: watch, Verbose: verbose, LogOutput: os.Stderr})
	if err != nil {
		return err
	}
	defer ws.Close()

	// The server stops when stdin closes; that must also stop the watcher.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if watch {
		if err := runWatchInBackground(gctx, g, ws); err != nil {
			return err
		}
	}

	searcher, err := ws.Searcher()
	if err != nil {
		return err
	}
	defer searcher.Close()

	server, err := mcp.NewServer(mcp.ServerConfig{
		Search:         searcher,
		Branch:         ws.BranchSearcher(),
		BranchDefaults: ws.Config.BranchingOptions(0),
		Status:         ws.Status,
		Logger:         logging.Component(ws.Logger, "mcp"),
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	g.Go(func() error {
		defer cancel()
		return server.Serve(gctx)
	})
	return g.Wait()
}
