package indexer

import (
	"context"

	"github.com/mvp-joe/project-codex/internal/ledger"
	"github.com/mvp-joe/project-codex/internal/model"
	"github.com/mvp-joe/project-codex/internal/snapshot"
	"github.com/mvp-joe/project-codex/internal/storage"
)

// Status summarizes the cell store, the fuzzy index, the ledger and the
// snapshot.
type Status struct {
	Index          *storage.IndexStats        `json:"index"`
	Cells          map[model.Side]int         `json:"cells"`
	PendingChanges map[model.ResourceType]int `json:"pendingChanges"`
	LastReindex    string                     `json:"lastReindex,omitempty"`
	SnapshotDocs   *uint64                    `json:"snapshotDocs,omitempty"`
}

// CollectStatus gathers a Status. l and snap may be nil.
func CollectStatus(ctx context.Context, cells *storage.CellStore, index *storage.IndexStore, l *ledger.Ledger, snap *snapshot.Snapshot) (*Status, error) {
	stats, err := index.GetIndexStats(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := cells.CountCells(ctx)
	if err != nil {
		return nil, err
	}
	status := &Status{Index: stats, Cells: counts, PendingChanges: make(map[model.ResourceType]int)}

	if l != nil {
		for _, rt := range model.AllResourceTypes() {
			n, err := l.CountPending(ctx, rt)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				status.PendingChanges[rt] = n
			}
		}
	}

	if status.LastReindex, err = storage.GetMetadata(index.DB(), MetaLastReindex); err != nil {
		return nil, err
	}

	if snap != nil {
		n, err := snap.Count()
		if err != nil {
			return nil, err
		}
		status.SnapshotDocs = &n
	}
	return status, nil
}
