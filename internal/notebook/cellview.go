package notebook

// View is the single capability set mutation and read-only tool code use
// to read a cell regardless of which backend produced it (§4.1). The two
// implementations are PlainView (wrapping a *Cell from the filesystem
// backend) and crdtdoc.CellEntry (a live collaborative cell, which
// implements this interface directly from package crdtdoc to avoid an
// import cycle).
type View interface {
	Source() string
	CellType() CellType
	ID() (string, bool)
	Outputs() []Output
}

// PlainView adapts a decoded *Cell to the View capability set.
type PlainView struct {
	cell *Cell
}

// NewPlainView wraps a cell decoded from the on-disk JSON notebook format.
func NewPlainView(c *Cell) PlainView { return PlainView{cell: c} }

func (v PlainView) Source() string {
	return v.cell.Source
}

// CellType defaults to code when absent, matching §4.1.
func (v PlainView) CellType() CellType {
	if v.cell.Type == "" {
		return CellCode
	}
	return v.cell.Type
}

func (v PlainView) ID() (string, bool) {
	return v.cell.ID, v.cell.ID != ""
}

func (v PlainView) Outputs() []Output {
	return v.cell.Outputs
}

// Metadata returns the wrapped cell's metadata map (read by snapshot
// capture).
func (v PlainView) Metadata() map[string]any {
	return v.cell.Metadata
}

// CoerceSource normalizes a decoded JSON field that may be a string, a
// []interface{} of lines, or absent, into the joined string used
// throughout the engine. Per §4.1: array lines are joined without a
// separator because notebook-format lines already carry trailing newlines.
func CoerceSource(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []any:
		out := ""
		for _, line := range v {
			if s, ok := line.(string); ok {
				out += s
			}
		}
		return out
	case []string:
		out := ""
		for _, s := range v {
			out += s
		}
		return out
	default:
		return ""
	}
}
