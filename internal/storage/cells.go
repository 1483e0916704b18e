package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/project-codex/internal/model"
)

// CellKey identifies a stored cell.
type CellKey struct {
	CellID string
	Side   model.Side
}

// CellStore persists parsed source and target cells. Each (cell id, side)
// pair holds exactly one cell; the latest write wins.
type CellStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewCellStore wraps an open database whose schema has been created.
func NewCellStore(db *sql.DB) *CellStore {
	return &CellStore{db: db, now: time.Now}
}

// ReplaceCellsForURI makes cells the complete set of cells on side that came
// from uri. Cells previously extracted from uri but absent now are removed
// and their ids returned.
func (s *CellStore) ReplaceCellsForURI(ctx context.Context, side model.Side, uri string, cells []model.Cell) ([]string, error) {
	var removed []string
	err := withRetry(ctx, func() error {
		removed = removed[:0]

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		existing, err := cellIDsForURI(ctx, tx, side, uri)
		if err != nil {
			return err
		}

		keep := make(map[string]bool, len(cells))
		for _, c := range cells {
			keep[c.CellID] = true
		}
		for _, id := range existing {
			if keep[id] {
				continue
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM cells WHERE cell_id = ? AND side = ?", id, string(side)); err != nil {
				return fmt.Errorf("failed to delete cell %s: %w", id, err)
			}
			removed = append(removed, id)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO cells (cell_id, side, content, uri, line, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(cell_id, side) DO UPDATE SET
				content = excluded.content,
				uri = excluded.uri,
				line = excluded.line,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare cell upsert: %w", err)
		}
		defer stmt.Close()

		now := formatTime(s.now())
		for _, c := range cells {
			if _, err := stmt.ExecContext(ctx, c.CellID, string(side), c.Content, uri, c.Line, now); err != nil {
				return fmt.Errorf("failed to upsert cell %s: %w", c.CellID, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// DeleteCellsByURI removes every cell extracted from uri on either side.
func (s *CellStore) DeleteCellsByURI(ctx context.Context, uri string) ([]CellKey, error) {
	rows, err := sq.Select("cell_id", "side").From("cells").
		Where(sq.Eq{"uri": uri}).
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query cells for %s: %w", uri, err)
	}
	var keys []CellKey
	for rows.Next() {
		var k CellKey
		var side string
		if err := rows.Scan(&k.CellID, &side); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan cell key: %w", err)
		}
		k.Side = model.Side(side)
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cells: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM cells WHERE uri = ?", uri); err != nil {
		return nil, fmt.Errorf("failed to delete cells for %s: %w", uri, err)
	}
	return keys, nil
}

// ClearCells removes every stored cell and returns how many were removed.
func (s *CellStore) ClearCells(ctx context.Context) (int64, error) {
	res, err := sq.Delete("cells").RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cells: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetCell loads one cell. Returns ErrNotFound when it does not exist.
func (s *CellStore) GetCell(ctx context.Context, cellID string, side model.Side) (*model.Cell, error) {
	var c model.Cell
	err := s.db.QueryRowContext(ctx,
		"SELECT cell_id, content, uri, line FROM cells WHERE cell_id = ? AND side = ?",
		cellID, string(side),
	).Scan(&c.CellID, &c.Content, &c.URI, &c.Line)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cell %s (%s): %w", cellID, side, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cell %s: %w", cellID, err)
	}
	return &c, nil
}

// GetTranslationPair joins the source and target cells for cellID. Returns
// ErrNotFound when neither side exists; a missing side is left empty.
func (s *CellStore) GetTranslationPair(ctx context.Context, cellID string) (*model.TranslationPair, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT side, cell_id, content, uri, line FROM cells WHERE cell_id = ?", cellID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pair %s: %w", cellID, err)
	}
	defer rows.Close()

	pair := &model.TranslationPair{CellID: cellID}
	found := false
	for rows.Next() {
		var side string
		var c model.Cell
		if err := rows.Scan(&side, &c.CellID, &c.Content, &c.URI, &c.Line); err != nil {
			return nil, fmt.Errorf("failed to scan pair cell: %w", err)
		}
		found = true
		if model.Side(side) == model.SideSource {
			pair.SourceCell = c
		} else {
			pair.TargetCell = c
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pair cells: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("translation pair %s: %w", cellID, ErrNotFound)
	}
	return pair, nil
}

// CountCells returns the number of stored cells per side.
func (s *CellStore) CountCells(ctx context.Context) (map[model.Side]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT side, COUNT(*) FROM cells GROUP BY side")
	if err != nil {
		return nil, fmt.Errorf("failed to count cells: %w", err)
	}
	defer rows.Close()

	counts := map[model.Side]int{model.SideSource: 0, model.SideTarget: 0}
	for rows.Next() {
		var side string
		var n int
		if err := rows.Scan(&side, &n); err != nil {
			return nil, fmt.Errorf("failed to scan cell count: %w", err)
		}
		counts[model.Side(side)] = n
	}
	return counts, rows.Err()
}

// ScanCells streams every cell on side to fn in id order. fn must not use
// the database.
func (s *CellStore) ScanCells(ctx context.Context, side model.Side, fn func(model.Cell) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT cell_id, content, uri, line FROM cells WHERE side = ? ORDER BY cell_id", string(side))
	if err != nil {
		return fmt.Errorf("failed to scan cells: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c model.Cell
		if err := rows.Scan(&c.CellID, &c.Content, &c.URI, &c.Line); err != nil {
			return fmt.Errorf("failed to scan cell: %w", err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

func cellIDsForURI(ctx context.Context, tx *sql.Tx, side model.Side, uri string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT cell_id FROM cells WHERE side = ? AND uri = ?", string(side), uri)
	if err != nil {
		return nil, fmt.Errorf("failed to query cells for %s: %w", uri, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cell id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
