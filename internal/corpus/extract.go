package corpus

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mvp-joe/project-codex/internal/fuzzy"
	"github.com/mvp-joe/project-codex/internal/model"
)

// codeCellKind marks scripture cells in a .codex notebook.
const codeCellKind = 2

// ExtractBible reads plain "BOOK C:V text" sequences. Verses may share a line
// or span lines; Line is the 1-based line of the reference.
func ExtractBible(r io.Reader, uri string) ([]model.Cell, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	text := string(data)

	var cells []model.Cell
	line, pos := 1, 0
	for _, span := range splitRefs(text) {
		line += strings.Count(text[pos:span.offset], "\n")
		pos = span.offset
		cells = append(cells, model.Cell{
			CellID:  span.ref.String(),
			Content: collapseSpace(span.text),
			URI:     uri,
			Line:    line,
		})
	}
	return dedupeCells(cells), nil
}

type notebook struct {
	Cells []notebookCell `json:"cells"`
}

type notebookCell struct {
	Kind     int            `json:"kind"`
	Value    string         `json:"value"`
	Metadata map[string]any `json:"metadata"`
}

// ExtractCodex reads a .codex notebook. Scripture cells may hold several
// inline references, each starting a verse; a cell without inline references
// takes its vref from metadata.id. Line is the 1-based cell position.
func ExtractCodex(r io.Reader, uri string) ([]model.Cell, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	var nb notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, fmt.Errorf("%w: failed to decode notebook %s: %w", ErrMalformedFile, uri, err)
	}

	var cells []model.Cell
	for i, c := range nb.Cells {
		if c.Kind != codeCellKind {
			continue
		}
		value := fuzzy.StripTags(c.Value)

		spans := splitRefs(value)
		if len(spans) > 0 {
			for _, span := range spans {
				cells = append(cells, model.Cell{
					CellID:  span.ref.String(),
					Content: collapseSpace(span.text),
					URI:     uri,
					Line:    i + 1,
				})
			}
			continue
		}

		id, _ := c.Metadata["id"].(string)
		ref, err := ParseVRef(id)
		if err != nil {
			continue
		}
		cells = append(cells, model.Cell{
			CellID:  ref.String(),
			Content: collapseSpace(value),
			URI:     uri,
			Line:    i + 1,
		})
	}
	return dedupeCells(cells), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// dedupeCells keeps the last occurrence of each cell id, in first-seen order.
func dedupeCells(cells []model.Cell) []model.Cell {
	index := make(map[string]int, len(cells))
	out := make([]model.Cell, 0, len(cells))
	for _, c := range cells {
		if i, ok := index[c.CellID]; ok {
			out[i] = c
			continue
		}
		index[c.CellID] = len(out)
		out = append(out, c)
	}
	return out
}
