package cli

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-codex/internal/config"
	"github.com/mvp-joe/project-codex/internal/snapshot"
)

var cleanQuietFlag bool
var cleanSnapshotFlag bool

// cleanCmd represents the clean command
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete the index to force a full reindex",
	Long: `Clean removes the index database (cells, index documents and change ledger)
and the search snapshot. The next 'codex index' or 'codex watch' rebuilds them
from the files on disk.

With --snapshot only the snapshot is removed; it is rebuilt on the next run
while the database is kept.

The configuration file (.codex/config.yml) is preserved.

Use cases:
  - Corrupted index data
  - Changed n-gram size or other settings baked into stored documents
  - Debugging indexing issues

Examples:
  codex clean
  codex clean --snapshot
`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVarP(&cleanQuietFlag, "quiet", "q", false, "Suppress output messages")
	cleanCmd.Flags().BoolVar(&cleanSnapshotFlag, "snapshot", false, "Only delete the search snapshot")
}

func runClean(cmd *cobra.Command, args []string) error {
	return executeClean(workDir, cleanSnapshotFlag, cleanQuietFlag, cmd.OutOrStdout())
}

// executeClean deletes the index files of the workspace at root. It refuses
// while another process holds the workspace lock.
func executeClean(root string, snapshotOnly, quiet bool, out io.Writer) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	cfg, err := config.LoadConfigFromDir(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dataDir := cfg.DataDir(root)
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if !quiet {
			fmt.Fprintln(out, "No index found for this workspace")
		}
		return nil
	}

	lock := flock.New(filepath.Join(dataDir, LockFileName))
	if err := acquireWriterLock(lock); err != nil {
		return err
	}
	defer lock.Unlock()

	targets := []string{snapshot.Path(dataDir)}
	if !snapshotOnly {
		dbPath := cfg.DatabasePath(root)
		targets = append(targets, dbPath, dbPath+"-wal", dbPath+"-shm")
	}

	var sizeMB float64
	removed := 0
	for _, path := range targets {
		size, err := pathSize(path)
		if os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		sizeMB += float64(size) / (1024 * 1024)
		removed++
	}

	if !quiet {
		switch {
		case removed == 0:
			fmt.Fprintln(out, "No index found for this workspace")
			return nil
		case snapshotOnly:
			fmt.Fprintf(out, "✓ Cleaned search snapshot (~%.1f MB)\n", sizeMB)
		default:
			fmt.Fprintf(out, "✓ Cleaned index (~%.1f MB)\n", sizeMB)
		}
		fmt.Fprintln(out, "Next 'codex index' will perform a full reindex")
	}
	return nil
}

// pathSize returns the size of a file, or the total size of a directory tree.
func pathSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if info, err := d.Info(); err == nil && !d.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
