package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for FileWatcher:
// - NewFileWatcher creates watcher successfully with valid directories
// - NewFileWatcher returns error with invalid directory
// - Single file change fires callback after debounce
// - Rapid changes to several files are batched into one callback
// - Pause/Resume behavior (accumulate during pause, fire on resume)
// - File deleted reports OpRemove
// - Directory added triggers recursive watch
// - Ignored directories are not watched
// - Extension filtering (only monitored extensions trigger callback)
// - Stop() is idempotent and safe before Start()
// - classifyEvent and mergeOp map raw events to ops

const testDebounce = 100 * time.Millisecond

// collector gathers callback batches.
type collector struct {
	mu      sync.Mutex
	batches [][]Change
	called  chan struct{}
}

func newCollector() *collector {
	return &collector{called: make(chan struct{}, 16)}
}

func (c *collector) callback(changes []Change) {
	c.mu.Lock()
	c.batches = append(c.batches, changes)
	c.mu.Unlock()
	c.called <- struct{}{}
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.called:
	case <-time.After(3 * time.Second):
		t.Fatal("callback not called before timeout")
	}
}

func (c *collector) all() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Change
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func paths(changes []Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Path
	}
	return out
}

func startWatcher(t *testing.T, dir string, opts Options) (FileWatcher, *collector) {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = testDebounce
	}
	if opts.Extensions == nil {
		opts.Extensions = []string{".bible", ".codex"}
	}
	opts.Logger = zerolog.Nop()

	w, err := NewFileWatcher([]string{dir}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })

	c := newCollector()
	require.NoError(t, w.Start(context.Background(), c.callback))
	// Wait for watcher to initialize
	time.Sleep(50 * time.Millisecond)
	return w, c
}

func TestNewFileWatcher_Success(t *testing.T) {
	t.Parallel()

	w, err := NewFileWatcher([]string{t.TempDir()}, Options{Extensions: []string{".codex"}})
	require.NoError(t, err)
	require.NotNil(t, w)
	require.NoError(t, w.Stop())
}

func TestNewFileWatcher_InvalidDirectory(t *testing.T) {
	t.Parallel()

	w, err := NewFileWatcher([]string{filepath.Join(t.TempDir(), "nonexistent")}, Options{})
	assert.Error(t, err)
	assert.Nil(t, w)
}

func TestFileWatcher_SingleFileChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, c := startWatcher(t, dir, Options{})

	file := filepath.Join(dir, "JHN.codex")
	require.NoError(t, os.WriteFile(file, []byte(`{"cells":[]}`), 0644))

	c.wait(t)
	changes := c.all()
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Path: file, Op: OpCreate}, changes[0])
}

func TestFileWatcher_BatchesRapidChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, c := startWatcher(t, dir, Options{Debounce: 300 * time.Millisecond})

	files := []string{
		filepath.Join(dir, "a.bible"),
		filepath.Join(dir, "b.codex"),
		filepath.Join(dir, "c.codex"),
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(f, []byte("GEN 1:1 x"), 0644))
		time.Sleep(30 * time.Millisecond)
	}
	// Same file again; must appear once.
	require.NoError(t, os.WriteFile(files[0], []byte("GEN 1:1 y"), 0644))

	c.wait(t)
	time.Sleep(400 * time.Millisecond)

	assert.Equal(t, 1, c.count(), "changes within the debounce window share one callback")
	assert.Equal(t, files, paths(c.all()), "sorted by path, one entry per file")
}

func TestFileWatcher_PauseResume(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, c := startWatcher(t, dir, Options{})

	w.Pause()
	file := filepath.Join(dir, "paused.codex")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0644))

	// Beyond the debounce period nothing fires
	time.Sleep(4 * testDebounce)
	assert.Zero(t, c.count(), "no callbacks while paused")

	w.Resume()
	c.wait(t)
	assert.Contains(t, paths(c.all()), file)
}

func TestFileWatcher_FileDeleted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "old.bible")
	require.NoError(t, os.WriteFile(file, []byte("GEN 1:1 x"), 0644))

	_, c := startWatcher(t, dir, Options{})
	require.NoError(t, os.Remove(file))

	c.wait(t)
	changes := c.all()
	require.Len(t, changes, 1)
	assert.Equal(t, OpRemove, changes[0].Op)
}

func TestFileWatcher_DirectoryAdded(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, c := startWatcher(t, dir, Options{})

	newDir := filepath.Join(dir, "files")
	require.NoError(t, os.Mkdir(newDir, 0755))
	// Wait for directory to be added to watcher
	time.Sleep(200 * time.Millisecond)

	file := filepath.Join(newDir, "GEN.codex")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0644))

	c.wait(t)
	assert.Contains(t, paths(c.all()), file)
}

func TestFileWatcher_IgnoredDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ignored := filepath.Join(dir, ".codex")
	require.NoError(t, os.Mkdir(ignored, 0755))

	_, c := startWatcher(t, dir, Options{
		Ignore: func(path string) bool { return strings.Contains(path, ".codex"+string(filepath.Separator)) || path == ignored },
	})

	require.NoError(t, os.WriteFile(filepath.Join(ignored, "x.codex"), []byte("{}"), 0644))
	visible := filepath.Join(dir, "y.codex")
	require.NoError(t, os.WriteFile(visible, []byte("{}"), 0644))

	c.wait(t)
	assert.Equal(t, []string{visible}, paths(c.all()))
}

func TestFileWatcher_ExtensionFiltering(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, c := startWatcher(t, dir, Options{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0644))
	upper := filepath.Join(dir, "ROM.CODEX")
	require.NoError(t, os.WriteFile(upper, []byte("{}"), 0644))

	c.wait(t)
	assert.Equal(t, []string{upper}, paths(c.all()))
}

func TestFileWatcher_StopIdempotent(t *testing.T) {
	t.Parallel()

	// Never started
	w, err := NewFileWatcher([]string{t.TempDir()}, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	// Started, stopped concurrently
	w2, err := NewFileWatcher([]string{t.TempDir()}, Options{})
	require.NoError(t, err)
	require.NoError(t, w2.Start(context.Background(), func([]Change) {}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w2.Stop()
		}()
	}
	wg.Wait()
}

func TestFileWatcher_ContextCancellation(t *testing.T) {
	t.Parallel()

	w, err := NewFileWatcher([]string{t.TempDir()}, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx, func([]Change) {}))
	cancel()

	fw := w.(*fileWatcher)
	select {
	case <-fw.doneCh:
	case <-time.After(time.Second):
		t.Fatal("watch loop did not exit after cancel")
	}
	require.NoError(t, w.Stop())
}

func TestClassifyEvent(t *testing.T) {
	t.Parallel()

	fw := &fileWatcher{
		extensions: map[string]bool{".codex": true},
		ignore:     func(p string) bool { return strings.HasPrefix(p, "/ignored/") },
	}

	tests := []struct {
		name   string
		event  fsnotify.Event
		wantOp Op
		wantOK bool
	}{
		{"create", fsnotify.Event{Name: "/w/a.codex", Op: fsnotify.Create}, OpCreate, true},
		{"write", fsnotify.Event{Name: "/w/a.codex", Op: fsnotify.Write}, OpWrite, true},
		{"remove", fsnotify.Event{Name: "/w/a.codex", Op: fsnotify.Remove}, OpRemove, true},
		{"rename is remove", fsnotify.Event{Name: "/w/a.codex", Op: fsnotify.Rename}, OpRemove, true},
		{"chmod dropped", fsnotify.Event{Name: "/w/a.codex", Op: fsnotify.Chmod}, "", false},
		{"wrong extension", fsnotify.Event{Name: "/w/a.txt", Op: fsnotify.Write}, "", false},
		{"ignored", fsnotify.Event{Name: "/ignored/a.codex", Op: fsnotify.Write}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ok := fw.classifyEvent(tt.event)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOp, op)
		})
	}
}

func TestMergeOp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, OpCreate, mergeOp("", OpCreate))
	assert.Equal(t, OpCreate, mergeOp(OpCreate, OpWrite))
	assert.Equal(t, OpRemove, mergeOp(OpCreate, OpRemove))
	assert.Equal(t, OpCreate, mergeOp(OpRemove, OpCreate))
	assert.Equal(t, OpWrite, mergeOp(OpWrite, OpWrite))
}
