package rename

import (
	"context"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

// Renamer ties the virtual-file projection to the external analyzer.
type Renamer struct {
	Locator *Locator
}

// New builds a Renamer over locator.
func New(locator *Locator) *Renamer {
	return &Renamer{Locator: locator}
}

// Rename implements §4.11 end to end: project, map position, invoke the
// analyzer, split the rewritten source back into per-cell edits.
// "Markdown cells and non-code positions are rejected up front."
func (r *Renamer) Rename(ctx context.Context, cells []notebook.View, cellIndex, line0, col0 int, newName string) ([]Edit, error) {
	if cellIndex < 0 || cellIndex >= len(cells) {
		return nil, &notebookerr.OutOfRange{Index: cellIndex, Count: len(cells)}
	}
	if cells[cellIndex].CellType() != notebook.CellCode {
		return nil, &notebookerr.ConflictingArgs{Detail: "rename_symbol requires a code cell"}
	}

	vf := Project(cells)
	line1, col, err := vf.MapPosition(cellIndex, line0, col0)
	if err != nil {
		return nil, err
	}

	resp, err := r.Locator.Analyze(ctx, Request{
		Source:  vf.Source,
		Line:    line1,
		Column:  col,
		NewName: newName,
	})
	if err != nil {
		return nil, err
	}

	return SplitBack(resp.RewrittenSource, vf.Spans, cells), nil
}
