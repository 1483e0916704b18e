package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-codex/internal/indexer"
	"github.com/mvp-joe/project-codex/internal/model"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Long: `Show document counts per resource type, cell counts per side, pending
ledger changes and when the workspace was last fully indexed.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	return executeStats(context.Background(), workDir, statsJSON, cmd.OutOrStdout())
}

// executeStats prints the status of the workspace at root.
func executeStats(ctx context.Context, root string, jsonOutput bool, out io.Writer) error {
	ws, err := openWorkspace(root, workspaceOptions{Verbose: verbose})
	if err != nil {
		return err
	}
	defer ws.Close()

	status, err := ws.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, status)
	}
	formatStatus(out, status, time.Now())
	return nil
}

func formatStatus(out io.Writer, status *indexer.Status, now time.Time) {
	idx := status.Index

	fmt.Fprintln(out, "Index:")
	fmt.Fprintf(out, "  Documents: %s\n", formatNumber(idx.TotalEntries))
	for _, rt := range model.AllResourceTypes() {
		if n := idx.EntriesByType[rt]; n > 0 {
			fmt.Fprintf(out, "    %-16s %s\n", rt, formatNumber(n))
		}
	}
	if idx.ShadowEntries != idx.TotalEntries {
		fmt.Fprintf(out, "  Full-text: %s (out of sync, repaired on next search)\n", formatNumber(idx.ShadowEntries))
	}
	fmt.Fprintf(out, "  Avg words: %.1f\n", idx.AverageWordCount)
	if status.SnapshotDocs != nil {
		fmt.Fprintf(out, "  Snapshot:  %s documents\n", formatNumber(int(*status.SnapshotDocs)))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Cells:")
	fmt.Fprintf(out, "  Source: %s\n", formatNumber(status.Cells[model.SideSource]))
	fmt.Fprintf(out, "  Target: %s\n", formatNumber(status.Cells[model.SideTarget]))
	fmt.Fprintln(out)

	var last time.Time
	if status.LastReindex != "" {
		last, _ = time.Parse(time.RFC3339, status.LastReindex)
	}
	fmt.Fprintf(out, "Last indexed: %s\n", formatTimeSince(last, now))

	pending := 0
	for _, n := range status.PendingChanges {
		pending += n
	}
	fmt.Fprintf(out, "Pending changes: %s\n", formatNumber(pending))
}
