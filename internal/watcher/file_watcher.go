package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period used when Options.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a FileWatcher.
type Options struct {
	// Extensions to monitor, e.g. ".bible" and ".codex". Empty means every file.
	Extensions []string
	// Ignore reports paths (files or directories) that must not be watched.
	Ignore   func(path string) bool
	Debounce time.Duration
	Logger   zerolog.Logger
}

// fileWatcher implements FileWatcher interface.
type fileWatcher struct {
	watcher       *fsnotify.Watcher
	dirs          []string           // Directories to watch
	extensions    map[string]bool    // Extensions to monitor
	ignore        func(string) bool  // Paths never reported or watched
	debounceTime  time.Duration      // Quiet period before firing callback
	logger        zerolog.Logger     // Watch loop diagnostics
	callback      func([]Change)     // Callback to invoke with changes
	ctx           context.Context    // Context for lifecycle management
	cancel        context.CancelFunc // Cancel function for internal context
	paused        bool               // Whether watching is paused
	pausedMu      sync.RWMutex       // Protects paused flag
	accumulated   map[string]Op      // Accumulated changes by path
	accumulatedMu sync.Mutex         // Protects accumulated map
	debounceTimer *time.Timer        // Current debounce timer
	timerMu       sync.Mutex         // Protects debounce timer
	stopOnce      sync.Once          // Ensures Stop() is idempotent
	doneCh        chan struct{}      // Signals watch goroutine has finished
}

// NewFileWatcher creates a new file watcher for the given directories, which
// are watched recursively.
func NewFileWatcher(dirs []string, opts Options) (FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	extMap := make(map[string]bool)
	for _, ext := range opts.Extensions {
		extMap[strings.ToLower(ext)] = true
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Ignore == nil {
		opts.Ignore = func(string) bool { return false }
	}

	fw := &fileWatcher{
		watcher:      watcher,
		dirs:         dirs,
		extensions:   extMap,
		ignore:       opts.Ignore,
		debounceTime: opts.Debounce,
		logger:       opts.Logger,
		accumulated:  make(map[string]Op),
		doneCh:       make(chan struct{}),
	}

	for _, dir := range dirs {
		if err := fw.addDirectoriesRecursively(dir); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	return fw, nil
}

// Start begins watching for file changes.
func (fw *fileWatcher) Start(ctx context.Context, callback func(changes []Change)) error {
	if callback == nil {
		return nil
	}

	fw.callback = callback
	fw.ctx, fw.cancel = context.WithCancel(ctx)

	go fw.watch()
	return nil
}

// Stop stops the file watcher.
func (fw *fileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		if fw.cancel != nil {
			fw.cancel()
			<-fw.doneCh
		} else {
			// Never started
			close(fw.doneCh)
		}
		err = fw.watcher.Close()
	})
	return err
}

// Pause stops firing callbacks but continues accumulating events.
func (fw *fileWatcher) Pause() {
	fw.pausedMu.Lock()
	defer fw.pausedMu.Unlock()
	fw.paused = true
}

// Resume resumes firing callbacks. If events accumulated during pause, fires immediately.
func (fw *fileWatcher) Resume() {
	fw.pausedMu.Lock()
	wasPaused := fw.paused
	fw.paused = false
	fw.pausedMu.Unlock()

	if wasPaused {
		fw.flush()
	}
}

// watch is the main event loop.
func (fw *fileWatcher) watch() {
	defer close(fw.doneCh)

	fireCh := make(chan struct{}, 1)

	for {
		select {
		case <-fw.ctx.Done():
			fw.stopDebounceTimer()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			// New directories are watched too
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := fw.addDirectoriesRecursively(event.Name); err != nil {
						fw.logger.Warn().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
					}
					continue
				}
			}

			op, ok := fw.classifyEvent(event)
			if !ok {
				continue
			}

			fw.accumulatedMu.Lock()
			fw.accumulated[event.Name] = mergeOp(fw.accumulated[event.Name], op)
			fw.accumulatedMu.Unlock()

			fw.resetDebounceTimer(fireCh)

		case <-fireCh:
			fw.handleDebounceExpired()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}

// mergeOp folds a new event into the op already accumulated for a path. The
// latest event wins, except that writes after a create stay a create.
func mergeOp(prev, next Op) Op {
	if prev == OpCreate && next == OpWrite {
		return OpCreate
	}
	return next
}

// handleDebounceExpired is called when the debounce timer expires.
func (fw *fileWatcher) handleDebounceExpired() {
	fw.pausedMu.RLock()
	paused := fw.paused
	fw.pausedMu.RUnlock()

	if paused {
		return
	}
	fw.flush()
}

// flush hands every accumulated change to the callback, sorted by path.
func (fw *fileWatcher) flush() {
	fw.accumulatedMu.Lock()
	if len(fw.accumulated) == 0 {
		fw.accumulatedMu.Unlock()
		return
	}
	changes := make([]Change, 0, len(fw.accumulated))
	for path, op := range fw.accumulated {
		changes = append(changes, Change{Path: path, Op: op})
	}
	fw.accumulated = make(map[string]Op)
	fw.accumulatedMu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	if fw.callback != nil {
		fw.callback(changes)
	}
}

// resetDebounceTimer resets the debounce timer, properly stopping the old one.
func (fw *fileWatcher) resetDebounceTimer(fireCh chan struct{}) {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}

	fw.debounceTimer = time.AfterFunc(fw.debounceTime, func() {
		select {
		case fireCh <- struct{}{}:
		default:
		}
	})
}

// stopDebounceTimer stops the debounce timer if it exists.
func (fw *fileWatcher) stopDebounceTimer() {
	fw.timerMu.Lock()
	defer fw.timerMu.Unlock()

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
		fw.debounceTimer = nil
	}
}

// classifyEvent maps an fsnotify event to an Op, filtering by extension and
// ignore rules. Chmod-only events are dropped; a rename reports the old name
// as removed.
func (fw *fileWatcher) classifyEvent(event fsnotify.Event) (Op, bool) {
	var op Op
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpRemove
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpWrite
	default:
		return "", false
	}

	if fw.ignore(event.Name) {
		return "", false
	}
	if len(fw.extensions) > 0 && !fw.extensions[strings.ToLower(filepath.Ext(event.Name))] {
		return "", false
	}
	return op, true
}

// addDirectoriesRecursively adds all non-ignored directories in the tree to the watcher.
func (fw *fileWatcher) addDirectoriesRecursively(rootPath string) error {
	return filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == rootPath {
				return err
			}
			fw.logger.Warn().Err(err).Str("path", path).Msg("error accessing path")
			return nil
		}

		if !info.IsDir() {
			return nil
		}
		if path != rootPath && fw.ignore(path) {
			return filepath.SkipDir
		}

		if err := fw.watcher.Add(path); err != nil {
			fw.logger.Warn().Err(err).Str("dir", path).Msg("failed to watch directory")
		}
		return nil
	})
}
