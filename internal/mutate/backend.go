// Package mutate implements the mutation operations (§4.9 of spec.md):
// insert/update/delete/move/copy/retype/clear, single and batch, plus
// recover. Every operation follows the same order: resolve identity ->
// validate bounds -> consult locks -> consult focus -> apply -> record.
//
// Backend is the "uniform operations over a capability set" abstraction
// called for in §9: {cells_len, cell_at, begin_transaction, record_change,
// get_lock, set_lock}. This package names the set slightly differently
// (Len/At/Transact, with locks and the change log supplied to Engine
// separately rather than folded into Backend) because locks and the
// change log are already their own reusable components (internal/locks,
// internal/changelog) — Engine composes them instead of requiring every
// Backend implementation to re-expose them.
package mutate

import (
	"github.com/google/uuid"

	"github.com/jupyter-collab/notebook-engine/internal/crdtdoc"
	"github.com/jupyter-collab/notebook-engine/internal/notebook"
)

// NewCellData describes a cell to insert. If ID is empty a fresh id is
// generated (§4.4: "UUID-like string, generated at creation, never
// reused"). ID is deliberately not vetted for collisions with existing
// ids — accepted risk, see DESIGN.md Open Question (iii).
type NewCellData struct {
	ID             string
	Type           notebook.CellType
	Source         string
	Metadata       map[string]any
	ExecutionCount *int
	Outputs        []notebook.Output
}

func freshID() string { return uuid.NewString() }

// Backend is the uniform capability set mutation operations need,
// regardless of whether cells live in a CRDT-backed shared document or a
// plain in-memory slice loaded from disk.
type Backend interface {
	Len() int
	IDs() []string
	View(i int) notebook.View
	Metadata(i int) map[string]any

	SetSource(i int, source string)
	SetMetadata(i int, md map[string]any)
	SetCellType(i int, t notebook.CellType)
	SetExecutionCount(i int, n *int)
	SetOutputs(i int, outs []notebook.Output)

	// InsertAt inserts a new cell at i (or appends if i is out of [0,Len()])
	// and returns the id actually used.
	InsertAt(i int, data NewCellData) string
	// DeleteAt removes the cell at i and returns its fully materialized
	// value (needed to record the last-known source for recovery, §4.9).
	DeleteAt(i int) notebook.Cell
	// Move relocates the cell at from to the position to, using the
	// same-document reordering semantics of §4.9: the implementation
	// itself decrements to when it lies past the removed slot, and Engine
	// passes the raw destination index.
	Move(from, to int)

	// Transact wraps fn in a single atomic critical section (§4.9 "Batch
	// insert/update ... Atomic over the cell sequence").
	Transact(fn func() error) error

	// FocusArbiter returns nil for backends with no presence channel
	// (§4.8: filesystem backend).
	FocusArbiter() FocusChecker
	// Backend has no lock-table accessor: Engine is always constructed
	// with an explicit locks.Table.
}

// FocusChecker is the narrow capability Engine needs from
// internal/focus.Arbiter, named here to avoid an import cycle (focus
// depends on crdtdoc, not on mutate).
type FocusChecker interface {
	Check(cellID string, force bool) error
}

// ---- filesystem-backend implementation ----

// NotebookBackend adapts a plain *notebook.Notebook (as loaded by fsdoc) to
// the Backend capability set. It has no presence channel and is not
// concurrently shared across processes (§5: "strictly serial per
// request"), so Transact is just a direct call with no locking needed
// beyond what the caller already serializes at the request level.
type NotebookBackend struct {
	nb *notebook.Notebook
}

func NewNotebookBackend(nb *notebook.Notebook) *NotebookBackend {
	return &NotebookBackend{nb: nb}
}

// Notebook exposes the underlying value, e.g. for fsdoc.Write after a
// mutation completes.
func (b *NotebookBackend) Notebook() *notebook.Notebook { return b.nb }

func (b *NotebookBackend) Len() int { return len(b.nb.Cells) }

func (b *NotebookBackend) IDs() []string {
	ids := make([]string, len(b.nb.Cells))
	for i, c := range b.nb.Cells {
		ids[i] = c.ID
	}
	return ids
}

func (b *NotebookBackend) View(i int) notebook.View {
	return notebook.NewPlainView(b.nb.Cells[i])
}

func (b *NotebookBackend) Metadata(i int) map[string]any {
	return b.nb.Cells[i].Metadata
}

func (b *NotebookBackend) SetSource(i int, source string) { b.nb.Cells[i].Source = source }
func (b *NotebookBackend) SetMetadata(i int, md map[string]any) { b.nb.Cells[i].Metadata = md }
func (b *NotebookBackend) SetCellType(i int, t notebook.CellType) { b.nb.Cells[i].Type = t }
func (b *NotebookBackend) SetExecutionCount(i int, n *int) { b.nb.Cells[i].ExecutionCount = n }
func (b *NotebookBackend) SetOutputs(i int, outs []notebook.Output) { b.nb.Cells[i].Outputs = outs }

func (b *NotebookBackend) InsertAt(i int, data NewCellData) string {
	id := data.ID
	if id == "" {
		id = freshID()
	}
	cell := &notebook.Cell{
		ID:             id,
		Type:           data.Type,
		Source:         data.Source,
		Metadata:       data.Metadata,
		ExecutionCount: data.ExecutionCount,
		Outputs:        data.Outputs,
	}
	if cell.Metadata == nil {
		cell.Metadata = map[string]any{}
	}

	cells := b.nb.Cells
	if i < 0 || i > len(cells) {
		i = len(cells)
	}
	cells = append(cells, nil)
	copy(cells[i+1:], cells[i:])
	cells[i] = cell
	b.nb.Cells = cells
	return id
}

func (b *NotebookBackend) DeleteAt(i int) notebook.Cell {
	removed := b.nb.Cells[i].Clone()
	b.nb.Cells = append(b.nb.Cells[:i], b.nb.Cells[i+1:]...)
	return *removed
}

// Move relocates the cell at from to to, decrementing to when it lies past
// the removed slot (§4.9: "adjusts the destination index when it lies past
// the removed range") so filesystem and live backends agree on the result of
// a same-document move.
func (b *NotebookBackend) Move(from, to int) {
	cells := b.nb.Cells
	c := cells[from]
	cells = append(cells[:from], cells[from+1:]...)
	if to > from {
		to--
	}
	if to > len(cells) {
		to = len(cells)
	}
	if to < 0 {
		to = 0
	}
	cells = append(cells, nil)
	copy(cells[to+1:], cells[to:])
	cells[to] = c
	b.nb.Cells = cells
}

func (b *NotebookBackend) Transact(fn func() error) error { return fn() }

func (b *NotebookBackend) FocusArbiter() FocusChecker { return nil }

// ---- live-document-backend implementation ----

// LiveBackend adapts a *crdtdoc.Document to the Backend capability set.
type LiveBackend struct {
	doc    *crdtdoc.Document
	arbiter FocusChecker
}

func NewLiveBackend(doc *crdtdoc.Document, arbiter FocusChecker) *LiveBackend {
	return &LiveBackend{doc: doc, arbiter: arbiter}
}

func (b *LiveBackend) cells() []*crdtdoc.CellEntry {
	var out []*crdtdoc.CellEntry
	_ = b.doc.WithTx(func(tx *crdtdoc.Tx) error {
		out = append([]*crdtdoc.CellEntry{}, tx.Cells()...)
		return nil
	})
	return out
}

func (b *LiveBackend) Len() int { return len(b.cells()) }

func (b *LiveBackend) IDs() []string {
	cells := b.cells()
	ids := make([]string, len(cells))
	for i, c := range cells {
		ids[i] = c.RawID()
	}
	return ids
}

func (b *LiveBackend) View(i int) notebook.View { return b.cells()[i] }

func (b *LiveBackend) Metadata(i int) map[string]any { return b.cells()[i].Metadata() }

func (b *LiveBackend) SetSource(i int, source string) {
	c := b.cells()[i]
	// Empty-and-refill preserving the shared reference (§4.9 Update).
	c.SourceText().Fill(source)
}

func (b *LiveBackend) SetMetadata(i int, md map[string]any) { b.cells()[i].SetMetadata(md) }
func (b *LiveBackend) SetCellType(i int, t notebook.CellType) { b.cells()[i].SetCellType(t) }
func (b *LiveBackend) SetExecutionCount(i int, n *int) { b.cells()[i].SetExecutionCount(n) }
func (b *LiveBackend) SetOutputs(i int, outs []notebook.Output) { b.cells()[i].SetOutputs(outs) }

func (b *LiveBackend) InsertAt(i int, data NewCellData) string {
	id := data.ID
	if id == "" {
		id = freshID()
	}
	entry := crdtdoc.NewCellEntry(id, data.Type, data.Source, data.Metadata, data.ExecutionCount, data.Outputs)
	_ = b.doc.WithTx(func(tx *crdtdoc.Tx) error {
		n := tx.CellsLen()
		if i < 0 || i > n {
			i = n
		}
		tx.InsertCellAt(i, entry)
		return nil
	})
	return id
}

func (b *LiveBackend) DeleteAt(i int) notebook.Cell {
	var removed *crdtdoc.CellEntry
	_ = b.doc.WithTx(func(tx *crdtdoc.Tx) error {
		removed = tx.DeleteCellAt(i)
		return nil
	})
	if removed == nil {
		return notebook.Cell{}
	}
	return *removed.ToCell()
}

func (b *LiveBackend) Move(from, to int) {
	_ = b.doc.WithTx(func(tx *crdtdoc.Tx) error {
		tx.MoveCell(from, to)
		return nil
	})
}

// Transact opens the single document transaction for this Engine operation;
// every other LiveBackend method, and the SharedLog/SharedTable Engine calls
// inside fn, join it via Document.WithTx instead of opening their own.
func (b *LiveBackend) Transact(fn func() error) error {
	return b.doc.Transact(func(*crdtdoc.Tx) error { return fn() })
}

func (b *LiveBackend) FocusArbiter() FocusChecker { return b.arbiter }

// Document exposes the underlying live document for components (locks,
// changelog) that must be constructed against the same shared state.
func (b *LiveBackend) Document() *crdtdoc.Document { return b.doc }

var (
	_ Backend = (*NotebookBackend)(nil)
	_ Backend = (*LiveBackend)(nil)
)
