// Package notebook holds the data model shared by both backends (§3 of
// spec.md): cells, outputs, and the notebook-level container, plus the cell
// view adapter (§4.1) that gives mutation code a uniform reader over either
// backend's cell representation.
package notebook

// CellType is one of the two cell kinds the spec allows.
type CellType string

const (
	CellCode     CellType = "code"
	CellMarkdown CellType = "markdown"
)

// OutputType distinguishes the four output variants in §3.
type OutputType string

const (
	OutputStream        OutputType = "stream"
	OutputExecuteResult OutputType = "execute_result"
	OutputDisplayData   OutputType = "display_data"
	OutputError         OutputType = "error"
)

// Output is a single entry in a code cell's outputs sequence. Only the
// fields relevant to OutputType are populated; the rest are left zero.
type Output struct {
	OutputType OutputType `json:"output_type"`

	// stream
	Name string `json:"name,omitempty"`
	Text string `json:"text,omitempty"`

	// execute_result / display_data
	Data           map[string]any `json:"data,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ExecutionCount *int           `json:"execution_count,omitempty"`

	// error
	ErrorName      string   `json:"ename,omitempty"`
	ErrorValue     string   `json:"evalue,omitempty"`
	ErrorTraceback []string `json:"traceback,omitempty"`
}

// Cell is the in-memory representation shared by both backends. Source is
// always a plain string here regardless of backend; each backend's loader
// is responsible for normalizing into and out of this shape (§4.1, §4.2).
type Cell struct {
	ID             string
	Type           CellType
	Source         string
	Metadata       map[string]any
	ExecutionCount *int // nil for markdown, or code that has never run
	Outputs        []Output
}

// Clone returns a deep copy of the cell, used by the snapshot store and by
// copy/restore operations that must not alias source maps/slices.
func (c *Cell) Clone() *Cell {
	clone := &Cell{
		ID:     c.ID,
		Type:   c.Type,
		Source: c.Source,
	}
	if c.Metadata != nil {
		clone.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			clone.Metadata[k] = v
		}
	}
	if c.ExecutionCount != nil {
		n := *c.ExecutionCount
		clone.ExecutionCount = &n
	}
	if c.Outputs != nil {
		clone.Outputs = make([]Output, len(c.Outputs))
		copy(clone.Outputs, c.Outputs)
	}
	return clone
}

// TruncatedID returns the 8-character display id used throughout the
// tool-dispatch surface and the change log (§3, §4.4).
func TruncatedID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Notebook is the ordered sequence of cells plus document-level metadata
// (§3). It is the shape used by the filesystem backend directly, and the
// shape the live backend's crdtdoc.Document materializes into for callers
// that need a plain snapshot (e.g. snapshot/diff, search).
type Notebook struct {
	Cells         []*Cell
	Metadata      map[string]any
	NBFormat      int
	NBFormatMinor int
}
