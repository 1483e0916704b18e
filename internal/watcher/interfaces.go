package watcher

import "context"

// Op is the kind of filesystem change observed for a path.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
)

// Change is one debounced change to a corpus file.
type Change struct {
	Path string
	Op   Op
}

// FileWatcher monitors corpus files for changes with debouncing and pause/resume support.
type FileWatcher interface {
	// Start begins watching the directories, calling callback with debounced changes.
	Start(ctx context.Context, callback func(changes []Change)) error

	// Stop stops the file watcher and cleans up resources.
	Stop() error

	// Pause stops firing callbacks but continues accumulating events.
	Pause()

	// Resume resumes firing callbacks. If events accumulated during pause, fires immediately.
	Resume()
}
