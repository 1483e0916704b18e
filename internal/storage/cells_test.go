package storage

// Test Plan for CellStore:
// - ReplaceCellsForURI inserts cells and reports ids dropped from the file
// - A cell id moved to another file follows the latest write
// - GetTranslationPair joins both sides and tolerates a missing side
// - GetTranslationPair returns ErrNotFound when neither side exists
// - DeleteCellsByURI removes both sides and returns the removed keys
// - CountCells reports per-side counts
// - ClearCells empties both sides

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-codex/internal/model"
)

func TestCellStore_ReplaceCellsForURI(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cells := NewCellStore(NewTestDB(t))

	removed, err := cells.ReplaceCellsForURI(ctx, model.SideTarget, "files/GEN.codex", []model.Cell{
		{CellID: "GEN 1:1", Content: "In the beginning", Line: 1},
		{CellID: "GEN 1:2", Content: "The earth was formless", Line: 2},
	})
	require.NoError(t, err)
	assert.Empty(t, removed)

	removed, err = cells.ReplaceCellsForURI(ctx, model.SideTarget, "files/GEN.codex", []model.Cell{
		{CellID: "GEN 1:1", Content: "At the start", Line: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"GEN 1:2"}, removed)

	c, err := cells.GetCell(ctx, "GEN 1:1", model.SideTarget)
	require.NoError(t, err)
	assert.Equal(t, "At the start", c.Content)
	assert.Equal(t, "files/GEN.codex", c.URI)

	_, err = cells.GetCell(ctx, "GEN 1:2", model.SideTarget)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCellStore_MovedCell(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cells := NewCellStore(NewTestDB(t))

	_, err := cells.ReplaceCellsForURI(ctx, model.SideSource, "a.bible", []model.Cell{{CellID: "RUT 1:1", Content: "old"}})
	require.NoError(t, err)
	_, err = cells.ReplaceCellsForURI(ctx, model.SideSource, "b.bible", []model.Cell{{CellID: "RUT 1:1", Content: "new"}})
	require.NoError(t, err)

	c, err := cells.GetCell(ctx, "RUT 1:1", model.SideSource)
	require.NoError(t, err)
	assert.Equal(t, "new", c.Content)
	assert.Equal(t, "b.bible", c.URI)

	counts, err := cells.CountCells(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.SideSource])
	assert.Equal(t, 0, counts[model.SideTarget])
}

func TestCellStore_GetTranslationPair(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cells := NewCellStore(NewTestDB(t))

	_, err := cells.ReplaceCellsForURI(ctx, model.SideSource, "src.bible", []model.Cell{
		{CellID: "1JN 4:7", Content: "Beloved, let us love one another", Line: 7},
		{CellID: "1JN 4:8", Content: "He who does not love does not know God", Line: 8},
	})
	require.NoError(t, err)
	_, err = cells.ReplaceCellsForURI(ctx, model.SideTarget, "1JN.codex", []model.Cell{
		{CellID: "1JN 4:7", Content: "Dear friends, love one another", Line: 3},
	})
	require.NoError(t, err)

	pair, err := cells.GetTranslationPair(ctx, "1JN 4:7")
	require.NoError(t, err)
	assert.Equal(t, "1JN 4:7", pair.CellID)
	assert.Equal(t, "Beloved, let us love one another", pair.SourceCell.Content)
	assert.Equal(t, "Dear friends, love one another", pair.TargetCell.Content)
	assert.Equal(t, "1JN.codex", pair.TargetCell.URI)

	pair, err = cells.GetTranslationPair(ctx, "1JN 4:8")
	require.NoError(t, err)
	assert.Equal(t, "src.bible", pair.SourceCell.URI)
	assert.Empty(t, pair.TargetCell.Content)

	_, err = cells.GetTranslationPair(ctx, "1JN 4:9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCellStore_DeleteCellsByURI(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cells := NewCellStore(NewTestDB(t))

	_, err := cells.ReplaceCellsForURI(ctx, model.SideTarget, "MRK.codex", []model.Cell{
		{CellID: "MRK 1:1", Content: "The beginning of the good news"},
		{CellID: "MRK 1:2", Content: "As it is written"},
	})
	require.NoError(t, err)
	_, err = cells.ReplaceCellsForURI(ctx, model.SideTarget, "LUK.codex", []model.Cell{
		{CellID: "LUK 1:1", Content: "Many have undertaken"},
	})
	require.NoError(t, err)

	keys, err := cells.DeleteCellsByURI(ctx, "MRK.codex")
	require.NoError(t, err)
	assert.ElementsMatch(t, []CellKey{
		{CellID: "MRK 1:1", Side: model.SideTarget},
		{CellID: "MRK 1:2", Side: model.SideTarget},
	}, keys)

	counts, err := cells.CountCells(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.SideTarget])
}

func TestCellStore_ClearCells(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cells := NewCellStore(NewTestDB(t))

	_, err := cells.ReplaceCellsForURI(ctx, model.SideSource, "eng.bible", []model.Cell{
		{CellID: "JHN 11:35", Content: "Jesus wept."},
	})
	require.NoError(t, err)
	_, err = cells.ReplaceCellsForURI(ctx, model.SideTarget, "JHN.codex", []model.Cell{
		{CellID: "JHN 11:35", Content: "Jesus shed tears."},
	})
	require.NoError(t, err)

	n, err := cells.ClearCells(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	counts, err := cells.CountCells(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[model.SideSource])
	assert.Zero(t, counts[model.SideTarget])
}
