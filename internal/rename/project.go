// Package rename implements scope-aware Python rename across cell
// boundaries (§4.11 of spec.md): virtual-file projection of code cells,
// position mapping, invocation of an external Python analyzer, and
// splitting the rewritten source back into per-cell edits.
package rename

import (
	"strings"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

// CellSpan records where one code cell's lines landed in the virtual file
// (§4.11: "a table {cell_index, start_line_1based, line_count}").
type CellSpan struct {
	CellIndex     int
	StartLine1Based int
	LineCount     int
}

// VirtualFile is the concatenation of every code cell's source, in order,
// separated by a single newline; markdown cells contribute nothing.
type VirtualFile struct {
	Source string
	Spans  []CellSpan
}

// Project builds the virtual file from a cell sequence (§4.11).
func Project(cells []notebook.View) VirtualFile {
	var b strings.Builder
	var spans []CellSpan
	line := 1

	for i, c := range cells {
		if c.CellType() != notebook.CellCode {
			continue
		}
		src := c.Source()
		lineCount := strings.Count(src, "\n") + 1
		if src == "" {
			lineCount = 1
		}
		spans = append(spans, CellSpan{CellIndex: i, StartLine1Based: line, LineCount: lineCount})

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(src)
		line += lineCount
	}

	return VirtualFile{Source: b.String(), Spans: spans}
}

// MapPosition converts a (cell_index, line_0based, column_0based) request
// into a virtual (line_1based, column_0based) position (§4.11).
func (v VirtualFile) MapPosition(cellIndex, line0, col0 int) (line1 int, col int, err error) {
	for _, span := range v.Spans {
		if span.CellIndex != cellIndex {
			continue
		}
		if line0 < 0 || line0 >= span.LineCount {
			return 0, 0, &notebookerr.OutOfRange{Index: line0, Count: span.LineCount}
		}
		return span.StartLine1Based + line0, col0, nil
	}
	return 0, 0, &notebookerr.NotFound{What: "code cell at index for rename"}
}

// Edit is one cell whose source changed as a result of the rename (§4.11,
// §8 "rename across cells": "returns edits for cell 0 and cell 2 only").
type Edit struct {
	CellIndex int
	CellID    string
	OldSource string
	NewSource string
}

// SplitBack slices the analyzer's rewritten virtual source back into
// per-cell lines using the offset table, and emits an Edit for any cell
// whose joined new source differs from its original (§4.11).
func SplitBack(rewritten string, spans []CellSpan, cells []notebook.View) []Edit {
	lines := strings.Split(rewritten, "\n")

	var edits []Edit
	for _, span := range spans {
		start := span.StartLine1Based - 1
		end := start + span.LineCount
		if start < 0 || end > len(lines) {
			continue
		}
		newSource := strings.Join(lines[start:end], "\n")

		v := cells[span.CellIndex]
		oldSource := v.Source()
		if newSource == oldSource {
			continue
		}
		id, _ := v.ID()
		edits = append(edits, Edit{
			CellIndex: span.CellIndex,
			CellID:    id,
			OldSource: oldSource,
			NewSource: newSource,
		})
	}
	return edits
}
