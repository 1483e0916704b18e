package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-codex/internal/ledger"
	"github.com/mvp-joe/project-codex/internal/model"
)

var (
	ledgerJSON    bool
	ledgerBatches int
	cleanupDays   int
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and maintain the change ledger",
}

var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending changes, debounce counters and recent batches",
	Args:  cobra.NoArgs,
	RunE:  runLedgerStatus,
}

var ledgerCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete processed changes older than the retention period",
	Long: `Cleanup deletes processed change records older than --days (default from
config, indexing.retention_days). Pending changes are never deleted.`,
	Args: cobra.NoArgs,
	RunE: runLedgerCleanup,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerStatusCmd, ledgerCleanupCmd)
	ledgerStatusCmd.Flags().BoolVar(&ledgerJSON, "json", false, "Output as JSON")
	ledgerStatusCmd.Flags().IntVar(&ledgerBatches, "batches", 10, "Number of recent batch runs to show")
	ledgerCleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Retention in days (default from config)")
}

// ledgerStatus is the JSON form of `codex ledger status`.
type ledgerStatus struct {
	Pending  map[model.ResourceType]int `json:"pending"`
	Counters []ledger.DebounceCounter   `json:"debounceCounters"`
	Batches  []ledger.BatchRun          `json:"batches"`
}

func runLedgerStatus(cmd *cobra.Command, args []string) error {
	return executeLedgerStatus(context.Background(), workDir, ledgerBatches, ledgerJSON, cmd.OutOrStdout())
}

func executeLedgerStatus(ctx context.Context, root string, batches int, jsonOutput bool, out io.Writer) error {
	ws, err := openWorkspace(root, workspaceOptions{Verbose: verbose})
	if err != nil {
		return err
	}
	defer ws.Close()

	st := ledgerStatus{Pending: make(map[model.ResourceType]int)}
	for _, rt := range model.AllResourceTypes() {
		n, err := ws.Ledger.CountPending(ctx, rt)
		if err != nil {
			return err
		}
		st.Pending[rt] = n
	}
	if st.Counters, err = ws.Ledger.ListDebounceCounters(ctx); err != nil {
		return err
	}
	if st.Batches, err = ws.Ledger.ListBatchRuns(ctx, batches); err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(out, st)
	}

	fmt.Fprintln(out, "Pending changes:")
	for _, rt := range model.AllResourceTypes() {
		fmt.Fprintf(out, "  %-16s %s\n", rt, formatNumber(st.Pending[rt]))
	}
	fmt.Fprintln(out)

	now := time.Now()
	if len(st.Counters) > 0 {
		fmt.Fprintln(out, "Debounce counters:")
		for _, c := range st.Counters {
			fmt.Fprintf(out, "  %-16s %d pending, last change %s\n", c.ResourceType, c.PendingChanges, formatTimeSince(c.LastTriggerTime, now))
		}
		fmt.Fprintln(out)
	}

	if len(st.Batches) == 0 {
		fmt.Fprintln(out, "No batch runs")
		return nil
	}
	fmt.Fprintf(out, "Recent batches (%d):\n", len(st.Batches))
	for _, b := range st.Batches {
		fmt.Fprintf(out, "  %s  %-10s %-16s %d/%d  %s\n",
			b.StartTime.Local().Format(time.DateTime), b.Status, b.BatchType, b.ProcessedItems, b.TotalItems, b.ErrorMessage)
	}
	return nil
}

func runLedgerCleanup(cmd *cobra.Command, args []string) error {
	removed, err := executeLedgerCleanup(context.Background(), workDir, cleanupDays)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s processed changes\n", formatNumber(int(removed)))
	return nil
}

// executeLedgerCleanup applies the retention period; days <= 0 uses the
// configured retention.
func executeLedgerCleanup(ctx context.Context, root string, days int) (int64, error) {
	ws, err := openWorkspace(root, workspaceOptions{Writer: true, Verbose: verbose})
	if err != nil {
		return 0, err
	}
	defer ws.Close()

	if days <= 0 {
		return ws.Pump().Cleanup(ctx)
	}
	return ws.Ledger.CleanupOldChanges(ctx, days)
}
