// Package snapshot keeps an on-disk bleve copy of the derived cell index so
// that a workspace can answer keyword queries without touching SQLite, and
// recovers from a damaged copy by discarding and rebuilding it.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/branching"
	"github.com/mvp-joe/project-codex/internal/model"
	"github.com/mvp-joe/project-codex/internal/storage"
)

// DirName is the snapshot directory inside the workspace's .codex directory.
const DirName = "cells.bleve"

const batchSize = 1000

// ErrCorruptedSnapshot marks a snapshot that exists on disk but cannot be opened.
var ErrCorruptedSnapshot = errors.New("snapshot corrupted")

// Path returns the snapshot location for a workspace data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, DirName)
}

// Document is one indexed cell as stored in the snapshot.
type Document struct {
	ID           string
	ResourceType model.ResourceType
	Content      string
}

// Key identifies a snapshot document.
type Key struct {
	ID           string
	ResourceType model.ResourceType
}

func docKey(id string, rt model.ResourceType) string {
	return string(rt) + "|" + id
}

// Source streams the documents a rebuild copies from.
type Source interface {
	ScanDocuments(ctx context.Context, resourceType model.ResourceType, fn func(storage.Document) error) error
}

// Snapshot is a bleve index of cell documents. A path of "" means in-memory.
type Snapshot struct {
	mu           sync.RWMutex
	index        bleve.Index
	path         string
	needsRebuild bool
	logger       zerolog.Logger
}

var _ branching.Retriever = (*Snapshot)(nil)

// Open opens the snapshot at path, creating it when missing. A snapshot that
// fails to open is logged, deleted and recreated empty; NeedsRebuild then
// reports true until Rebuild runs.
func Open(path string, logger zerolog.Logger) (*Snapshot, error) {
	s := &Snapshot{path: path, logger: logger}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		idx, err := bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot: %w", err)
		}
		s.index = idx
		s.needsRebuild = true
		return s, nil
	}

	idx, err := bleve.Open(path)
	if err != nil {
		logger.Warn().
			Err(fmt.Errorf("%w: %w", ErrCorruptedSnapshot, err)).
			Str("path", path).
			Msg("snapshot unreadable, discarding and rebuilding")
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted snapshot: %w", err)
		}
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate snapshot: %w", err)
		}
		s.needsRebuild = true
	}
	s.index = idx
	return s, nil
}

// NewInMemory creates an empty snapshot that is never persisted.
func NewInMemory(logger zerolog.Logger) (*Snapshot, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory snapshot: %w", err)
	}
	return &Snapshot{index: idx, logger: logger, needsRebuild: true}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()

	contentMapping := bleve.NewTextFieldMapping()
	contentMapping.Analyzer = "standard"
	contentMapping.Store = true
	contentMapping.Index = true

	keywordMapping := bleve.NewTextFieldMapping()
	keywordMapping.Analyzer = "keyword"
	keywordMapping.Store = true
	keywordMapping.Index = true

	idMapping := bleve.NewTextFieldMapping()
	idMapping.Analyzer = "keyword"
	idMapping.Store = true
	idMapping.Index = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("id", idMapping)
	docMapping.AddFieldMappingsAt("resource_type", keywordMapping)
	docMapping.AddFieldMappingsAt("content", contentMapping)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func toFields(d Document) map[string]interface{} {
	return map[string]interface{}{
		"id":            d.ID,
		"resource_type": string(d.ResourceType),
		"content":       d.Content,
	}
}

// NeedsRebuild reports whether the snapshot was created or recovered empty
// and has not been rebuilt since.
func (s *Snapshot) NeedsRebuild() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.needsRebuild
}

// Count returns the number of documents in the snapshot.
func (s *Snapshot) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild replaces the snapshot contents with every document of src and
// returns how many were written.
func (s *Snapshot) Rebuild(ctx context.Context, src Source) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.resetLocked(); err != nil {
		return 0, err
	}

	n := 0
	batch := s.index.NewBatch()
	err := src.ScanDocuments(ctx, "", func(doc storage.Document) error {
		if n%batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		d := Document{ID: doc.ID, ResourceType: doc.ResourceType, Content: doc.Content}
		if err := batch.Index(docKey(d.ID, d.ResourceType), toFields(d)); err != nil {
			return fmt.Errorf("failed to add %s to batch: %w", d.ID, err)
		}
		n++
		if batch.Size() >= batchSize {
			if err := s.index.Batch(batch); err != nil {
				return fmt.Errorf("failed to execute batch: %w", err)
			}
			batch = s.index.NewBatch()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("snapshot rebuild failed: %w", err)
	}
	if batch.Size() > 0 {
		if err := s.index.Batch(batch); err != nil {
			return 0, fmt.Errorf("failed to execute final batch: %w", err)
		}
	}

	s.needsRebuild = false
	s.logger.Info().Int("documents", n).Msg("snapshot rebuilt")
	return n, nil
}

// resetLocked swaps in an empty index.
func (s *Snapshot) resetLocked() error {
	if err := s.index.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close snapshot before reset")
	}

	var (
		idx bleve.Index
		err error
	)
	if s.path == "" {
		idx, err = bleve.NewMemOnly(buildMapping())
	} else {
		if err := os.RemoveAll(s.path); err != nil {
			return fmt.Errorf("failed to remove snapshot: %w", err)
		}
		idx, err = bleve.New(s.path, buildMapping())
	}
	if err != nil {
		return fmt.Errorf("failed to reset snapshot: %w", err)
	}
	s.index = idx
	return nil
}

// Apply upserts and deletes documents in one batch.
func (s *Snapshot) Apply(upserts []Document, deletes []Key) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.index.NewBatch()
	for _, k := range deletes {
		batch.Delete(docKey(k.ID, k.ResourceType))
	}
	for _, d := range upserts {
		if err := batch.Index(docKey(d.ID, d.ResourceType), toFields(d)); err != nil {
			return fmt.Errorf("failed to add %s to batch: %w", d.ID, err)
		}
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Candidates implements branching.Retriever with a bleve match query: any
// analyzed query term matches, ranked by bleve's score.
func (s *Snapshot) Candidates(ctx context.Context, queryText string, limit int) ([]branching.Candidate, error) {
	return s.search(ctx, queryText, "", limit)
}

// Search is Candidates restricted to one resource type ("" for all).
func (s *Snapshot) Search(ctx context.Context, queryText string, resourceType model.ResourceType, limit int) ([]branching.Candidate, error) {
	return s.search(ctx, queryText, resourceType, limit)
}

func (s *Snapshot) search(ctx context.Context, queryText string, resourceType model.ResourceType, limit int) ([]branching.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	match := bleve.NewMatchQuery(queryText)
	match.SetField("content")
	match.SetOperator(query.MatchQueryOperatorOr)

	var q query.Query = match
	if resourceType != "" {
		rt := bleve.NewTermQuery(string(resourceType))
		rt.SetField("resource_type")
		q = bleve.NewConjunctionQuery(match, rt)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"id", "resource_type", "content"}

	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("snapshot search failed: %w", err)
	}

	out := make([]branching.Candidate, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, _ := hit.Fields["id"].(string)
		rt, _ := hit.Fields["resource_type"].(string)
		content, _ := hit.Fields["content"].(string)
		out = append(out, branching.Candidate{
			ID:           id,
			ResourceType: model.ResourceType(rt),
			Content:      content,
			Score:        hit.Score,
		})
	}
	return out, nil
}

// Close releases the index.
func (s *Snapshot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		return s.index.Close()
	}
	return nil
}
