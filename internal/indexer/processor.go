// Package indexer keeps the cell index in step with the corpus. The Pump
// drains the change ledger through a CellProcessor once a resource type has
// been quiet for its debounce window; Reindexer rebuilds everything from disk.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/corpus"
	"github.com/mvp-joe/project-codex/internal/ledger"
	"github.com/mvp-joe/project-codex/internal/model"
	"github.com/mvp-joe/project-codex/internal/snapshot"
	"github.com/mvp-joe/project-codex/internal/storage"
)

// CellProcessor applies ledger change records to the cell store, the index
// store and, when attached, the snapshot.
type CellProcessor struct {
	reader   *corpus.FileReader
	cells    *storage.CellStore
	index    *storage.IndexStore
	snapshot *snapshot.Snapshot
	logger   zerolog.Logger
}

// NewCellProcessor creates a processor. reader may be nil when only direct
// content changes are recorded.
func NewCellProcessor(reader *corpus.FileReader, cells *storage.CellStore, index *storage.IndexStore, logger zerolog.Logger) *CellProcessor {
	return &CellProcessor{reader: reader, cells: cells, index: index, logger: logger}
}

// AttachSnapshot makes the processor mirror index writes into s.
func (p *CellProcessor) AttachSnapshot(s *snapshot.Snapshot) {
	p.snapshot = s
}

// Process implements ledger.Processor. Records naming a file are coalesced
// per file, the last record winning; create and update re-read the file, and
// a file that no longer exists is treated as deleted. Records carrying
// metadata "content" for a resource id are indexed as given. Files that
// cannot be decoded are logged and skipped; any storage error fails the
// whole batch.
func (p *CellProcessor) Process(ctx context.Context, changes []ledger.ChangeRecord) error {
	var fileOrder []string
	files := make(map[string]ledger.ChangeRecord)
	var direct []directOp

	for _, c := range changes {
		content, hasContent := c.Metadata["content"].(string)
		key := storage.DocumentKey{ID: c.ResourceID, ResourceType: c.ResourceType}
		switch {
		case c.ResourceID != "" && hasContent:
			direct = append(direct, directOp{key: key, content: content, remove: c.ChangeType == model.ChangeDelete})
		case c.FilePath != "":
			if _, seen := files[c.FilePath]; !seen {
				fileOrder = append(fileOrder, c.FilePath)
			}
			files[c.FilePath] = c
		case c.ResourceID != "" && c.ChangeType == model.ChangeDelete:
			direct = append(direct, directOp{key: key, remove: true})
		default:
			p.logger.Debug().Str("id", c.ID).Str("resource_type", string(c.ResourceType)).Msg("skipping change without file or content")
		}
	}

	if err := p.applyDirect(ctx, direct); err != nil {
		return err
	}

	for _, path := range fileOrder {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if files[path].ChangeType == model.ChangeDelete {
			err = p.RemoveFile(ctx, path)
		} else {
			err = p.SyncFile(ctx, path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type directOp struct {
	key     storage.DocumentKey
	content string
	remove  bool
}

// applyDirect writes content-carrying records. The last record for a
// document decides whether it is upserted or removed.
func (p *CellProcessor) applyDirect(ctx context.Context, ops []directOp) error {
	if len(ops) == 0 {
		return nil
	}

	last := make(map[storage.DocumentKey]directOp, len(ops))
	var order []storage.DocumentKey
	for _, op := range ops {
		if _, seen := last[op.key]; !seen {
			order = append(order, op.key)
		}
		last[op.key] = op
	}

	var docs []storage.DocumentInput
	var deletes []storage.DocumentKey
	for _, k := range order {
		op := last[k]
		if op.remove {
			deletes = append(deletes, k)
			continue
		}
		docs = append(docs, storage.DocumentInput{ID: k.ID, ResourceType: k.ResourceType, Content: op.content})
	}

	if err := p.index.AddBatch(ctx, docs); err != nil {
		return fmt.Errorf("failed to index documents: %w", err)
	}
	if err := p.index.RemoveBatch(ctx, deletes); err != nil {
		return fmt.Errorf("failed to remove documents: %w", err)
	}
	return p.mirror(docs, deletes)
}

// SyncFile re-reads path and makes the stored cells and index documents match
// its current content.
func (p *CellProcessor) SyncFile(ctx context.Context, path string) error {
	if p.reader == nil {
		return fmt.Errorf("no corpus reader configured for %s", path)
	}
	f, err := p.reader.Read(ctx, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		p.logger.Debug().Str("path", path).Msg("file gone, removing its cells")
		return p.RemoveFile(ctx, path)
	case errors.Is(err, corpus.ErrUnsupportedFile):
		p.logger.Debug().Str("path", path).Msg("not a corpus file, skipping")
		return nil
	case errors.Is(err, corpus.ErrMalformedFile):
		p.logger.Warn().Err(err).Str("path", path).Msg("malformed corpus file, skipping")
		return nil
	case err != nil:
		return err
	}
	return p.writeFile(ctx, f)
}

func (p *CellProcessor) writeFile(ctx context.Context, f *corpus.File) error {
	removed, err := p.cells.ReplaceCellsForURI(ctx, f.Side, f.Path, f.Cells)
	if err != nil {
		return err
	}

	rt := f.Side.ResourceType()
	docs := make([]storage.DocumentInput, 0, len(f.Cells))
	for _, c := range f.Cells {
		docs = append(docs, storage.DocumentInput{ID: c.CellID, ResourceType: rt, Content: c.Content})
	}
	keys := make([]storage.DocumentKey, 0, len(removed))
	for _, id := range removed {
		keys = append(keys, storage.DocumentKey{ID: id, ResourceType: rt})
	}

	if err := p.index.AddBatch(ctx, docs); err != nil {
		return fmt.Errorf("failed to index %s: %w", f.Path, err)
	}
	if err := p.index.RemoveBatch(ctx, keys); err != nil {
		return fmt.Errorf("failed to remove stale cells of %s: %w", f.Path, err)
	}

	p.logger.Debug().Str("path", f.Path).Int("cells", len(docs)).Int("removed", len(keys)).Msg("file indexed")
	return p.mirror(docs, keys)
}

// RemoveFile drops every cell extracted from path and its index documents.
func (p *CellProcessor) RemoveFile(ctx context.Context, path string) error {
	removed, err := p.cells.DeleteCellsByURI(ctx, path)
	if err != nil {
		return err
	}
	keys := make([]storage.DocumentKey, 0, len(removed))
	for _, k := range removed {
		keys = append(keys, storage.DocumentKey{ID: k.CellID, ResourceType: k.Side.ResourceType()})
	}
	if err := p.index.RemoveBatch(ctx, keys); err != nil {
		return fmt.Errorf("failed to remove cells of %s: %w", path, err)
	}
	return p.mirror(nil, keys)
}

func (p *CellProcessor) mirror(docs []storage.DocumentInput, deletes []storage.DocumentKey) error {
	if p.snapshot == nil {
		return nil
	}
	upserts := make([]snapshot.Document, 0, len(docs))
	for _, d := range docs {
		upserts = append(upserts, snapshot.Document{ID: d.ID, ResourceType: d.ResourceType, Content: d.Content})
	}
	keys := make([]snapshot.Key, 0, len(deletes))
	for _, k := range deletes {
		keys = append(keys, snapshot.Key{ID: k.ID, ResourceType: k.ResourceType})
	}
	if err := p.snapshot.Apply(upserts, keys); err != nil {
		// Snapshot drift is repaired by the next rebuild.
		p.logger.Warn().Err(err).Msg("snapshot update failed")
	}
	return nil
}
