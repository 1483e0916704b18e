package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/project-codex/internal/model"
)

var (
	// ErrUnsupportedFile is returned for paths that are not corpus files.
	ErrUnsupportedFile = errors.New("not a corpus file")
	// ErrMalformedFile is returned when a corpus file cannot be decoded.
	ErrMalformedFile = errors.New("malformed corpus file")
)

// File is the extracted content of one corpus file.
type File struct {
	Path  string
	Side  model.Side
	Cells []model.Cell
}

// FileReader reads corpus files classified by a Discovery.
type FileReader struct {
	discovery *Discovery
}

// NewFileReader creates a reader using discovery to decide each file's side.
func NewFileReader(discovery *Discovery) *FileReader {
	return &FileReader{discovery: discovery}
}

// Discovery returns the reader's discovery.
func (r *FileReader) Discovery() *Discovery {
	return r.discovery
}

// Side classifies path without reading it.
func (r *FileReader) Side(path string) (model.Side, bool) {
	return r.discovery.Classify(path)
}

// Read extracts the cells of path. Notebooks (.codex) are parsed as JSON,
// everything else as plain text. A missing file returns an error wrapping
// os.ErrNotExist.
func (r *FileReader) Read(ctx context.Context, path string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	side, ok := r.discovery.Classify(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var cells []model.Cell
	if strings.EqualFold(filepath.Ext(path), ".codex") {
		cells, err = ExtractCodex(f, path)
	} else {
		cells, err = ExtractBible(f, path)
	}
	if err != nil {
		return nil, err
	}
	return &File{Path: path, Side: side, Cells: cells}, nil
}

// LoadAll reads paths concurrently with at most workers in flight
// (GOMAXPROCS when workers <= 0). Results keep the order of paths. The first
// error cancels the remaining reads.
func (r *FileReader) LoadAll(ctx context.Context, paths []string, workers int) ([]*File, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	files := make([]*File, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			f, err := r.Read(gctx, path)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
