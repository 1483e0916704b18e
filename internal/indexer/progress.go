package indexer

import "time"

// ProgressReporter provides callbacks for reporting reindex progress.
// Implementations can display progress bars, log messages, or remain silent.
type ProgressReporter interface {
	// OnDiscoveryStart is called when file discovery begins.
	OnDiscoveryStart()

	// OnDiscoveryComplete is called when file discovery finishes.
	OnDiscoveryComplete(sourceFiles, targetFiles int)

	// OnFileProcessingStart is called before writing files.
	OnFileProcessingStart(totalFiles int)

	// OnFileProcessed is called after each file is written.
	OnFileProcessed(fileName string)

	// OnSnapshotStart is called before the snapshot is rebuilt.
	OnSnapshotStart()

	// OnComplete is called when the reindex completes successfully.
	OnComplete(stats *ReindexStats)
}

// ReindexStats summarizes a full reindex.
type ReindexStats struct {
	SourceFiles       int
	TargetFiles       int
	SourceCells       int
	TargetCells       int
	SnapshotDocs      int
	SupersededChanges int
	Duration          time.Duration
}

// NoOpProgressReporter is a progress reporter that does nothing.
// Used when progress reporting is disabled (e.g., --quiet flag).
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) OnDiscoveryStart()                                {}
func (n *NoOpProgressReporter) OnDiscoveryComplete(sourceFiles, targetFiles int) {}
func (n *NoOpProgressReporter) OnFileProcessingStart(totalFiles int)             {}
func (n *NoOpProgressReporter) OnFileProcessed(fileName string)                  {}
func (n *NoOpProgressReporter) OnSnapshotStart()                                 {}
func (n *NoOpProgressReporter) OnComplete(stats *ReindexStats)                   {}
