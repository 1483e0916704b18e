package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-codex/internal/branching"
)

var (
	branchLimit       int
	branchMaxRestarts int
	branchJSON        bool
)

var branchCmd = &cobra.Command{
	Use:   "branch <passage>",
	Short: "Find translation pairs that together cover a passage",
	Long: `Branch decomposes a long or multi-clause query: each pick is the pair that
best covers a part of the query, the covered words are removed and the rest
is searched again.

Examples:
  codex branch "the light shines in the darkness and the darkness has not overcome it"
  codex branch "in the beginning was the word" --limit 3 --json
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBranch,
}

func init() {
	rootCmd.AddCommand(branchCmd)
	branchCmd.Flags().IntVarP(&branchLimit, "limit", "n", 0, "Number of pairs to return (default from config)")
	branchCmd.Flags().IntVar(&branchMaxRestarts, "max-restarts", 0, "Restarts from the full query; negative disables (default from config)")
	branchCmd.Flags().BoolVar(&branchJSON, "json", false, "Output as JSON")
}

func runBranch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var maxRestarts *int
	if cmd.Flags().Changed("max-restarts") {
		maxRestarts = &branchMaxRestarts
	}
	return executeBranch(ctx, workDir, strings.Join(args, " "), branchLimit, maxRestarts, branchJSON, cmd.OutOrStdout())
}

// executeBranch runs a branching search against the workspace at root.
func executeBranch(ctx context.Context, root, query string, limit int, maxRestarts *int, jsonOutput bool, out io.Writer) error {
	ws, err := openWorkspace(root, workspaceOptions{Verbose: verbose})
	if err != nil {
		return err
	}
	defer ws.Close()

	opts := ws.Config.BranchingOptions(limit)
	if maxRestarts != nil {
		opts.MaxRestarts = *maxRestarts
	}

	matches, err := ws.BranchSearcher().Search(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("branch search failed: %w", err)
	}

	if jsonOutput {
		if matches == nil {
			matches = []branching.Match{}
		}
		return writeJSON(out, matches)
	}

	if len(matches) == 0 {
		fmt.Fprintln(out, "No matches")
		return nil
	}
	for i, m := range matches {
		fmt.Fprintf(out, "%2d. %s  score %.3f  coverage %.0f%%\n", i+1, m.Pair.CellID, m.Score, m.Coverage*100)
		fmt.Fprintf(out, "    branch: %s\n", truncate(m.Branch, 76))
		if m.Pair.SourceCell.Content != "" {
			fmt.Fprintf(out, "    source: %s\n", truncate(m.Pair.SourceCell.Content, 76))
		}
		if m.Pair.TargetCell.Content != "" {
			fmt.Fprintf(out, "    target: %s\n", truncate(m.Pair.TargetCell.Content, 76))
		}
	}
	return nil
}
