package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/project-codex/internal/indexer"
)

// CLIProgressReporter implements progress reporting with progress bars.
type CLIProgressReporter struct {
	quiet          bool
	out            io.Writer
	fileBar        *progressbar.ProgressBar
	totalFiles     int
	processedFiles int
}

var _ indexer.ProgressReporter = (*CLIProgressReporter)(nil)

// NewCLIProgressReporter creates a new CLI progress reporter writing to out.
func NewCLIProgressReporter(out io.Writer, quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{quiet: quiet, out: out}
}

func (c *CLIProgressReporter) OnDiscoveryStart() {
	if c.quiet {
		return
	}
	fmt.Fprintln(c.out, "Discovering files...")
}

func (c *CLIProgressReporter) OnDiscoveryComplete(sourceFiles, targetFiles int) {
	if c.quiet {
		return
	}
	fmt.Fprintf(c.out, "Processing %d source files and %d target files\n", sourceFiles, targetFiles)
}

func (c *CLIProgressReporter) OnFileProcessingStart(totalFiles int) {
	if c.quiet {
		return
	}
	c.totalFiles = totalFiles
	c.processedFiles = 0

	c.fileBar = progressbar.NewOptions(totalFiles,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription("Indexing files"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

func (c *CLIProgressReporter) OnFileProcessed(fileName string) {
	if c.quiet {
		return
	}
	if c.fileBar != nil {
		c.processedFiles++
		c.fileBar.Add(1)
	}
}

func (c *CLIProgressReporter) OnSnapshotStart() {
	if c.quiet {
		return
	}
	if c.fileBar != nil {
		c.fileBar.Finish()
		c.fileBar = nil
	}
	fmt.Fprintln(c.out, "Rebuilding search snapshot...")
}

func (c *CLIProgressReporter) OnComplete(stats *indexer.ReindexStats) {
	if c.quiet {
		return
	}
	if c.fileBar != nil {
		c.fileBar.Finish()
		c.fileBar = nil
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "✓ Indexing complete: %s cells in %.1fs\n",
		formatNumber(stats.SourceCells+stats.TargetCells),
		stats.Duration.Seconds())
	fmt.Fprintf(c.out, "  Source cells: %s (%d files)\n", formatNumber(stats.SourceCells), stats.SourceFiles)
	fmt.Fprintf(c.out, "  Target cells: %s (%d files)\n", formatNumber(stats.TargetCells), stats.TargetFiles)
	if stats.SnapshotDocs > 0 {
		fmt.Fprintf(c.out, "  Snapshot:     %s documents\n", formatNumber(stats.SnapshotDocs))
	}
	if stats.SupersededChanges > 0 {
		fmt.Fprintf(c.out, "  Superseded %d pending changes\n", stats.SupersededChanges)
	}
}
