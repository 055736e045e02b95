// Package crdtdoc is the CRDT-shaped live document (§3, §9 of spec.md): an
// ordered sequence of cell entries (each a map with collaborative text for
// source, a collaborative sequence for outputs, and a collaborative map for
// metadata), plus the shared maps used by the change log and lock table,
// and the presence/awareness state the focus arbiter reads.
//
// It is not a wire-compatible CRDT implementation — no such library with
// wire compatibility to the notebook server's sync protocol exists in the
// example corpus this module was built from (see DESIGN.md). It is
// structured the way the teacher's Kolabpad shared-state machine is
// structured (mutex-guarded state, transaction-shaped mutators, a
// broadcast-on-change notify channel) so that every consumer package
// (changelog, locks, snapshot, focus, mutate) can be written once against
// this abstraction and swapped to a real CRDT library's document handle
// without changing their logic, should one become available upstream.
package crdtdoc

import (
	"sync"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
)

// Text is a collaborative text field. Fill empties and refills it in place
// (§4.9 Update: "the text is emptied and refilled, preserving the shared
// reference so concurrent cursors survive") rather than replacing the
// field with a new Text, which is why it is a pointer type shared by every
// holder of the cell.
type Text struct {
	mu    sync.RWMutex
	value string
}

func NewText(s string) *Text { return &Text{value: s} }

func (t *Text) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

// Fill empties and refills the text, preserving the pointer identity.
func (t *Text) Fill(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = s
}

// CellEntry is one entry of the live document's cell sequence.
type CellEntry struct {
	mu             sync.RWMutex
	id             string
	cellType       notebook.CellType
	source         *Text
	metadata       map[string]any
	executionCount *int
	outputs        []notebook.Output
}

// NewCellEntry builds a live cell entry from plain field values.
func NewCellEntry(id string, cellType notebook.CellType, source string, metadata map[string]any, execCount *int, outputs []notebook.Output) *CellEntry {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &CellEntry{
		id:             id,
		cellType:       cellType,
		source:         NewText(source),
		metadata:       metadata,
		executionCount: execCount,
		outputs:        outputs,
	}
}

// ID satisfies notebook.View; a CellEntry's id is always set at
// construction, so the bool is always true.
func (c *CellEntry) ID() (string, bool) { return c.id, c.id != "" }

// RawID returns the bare id string, for call sites that already know it is
// present (internal bookkeeping, not the View interface).
func (c *CellEntry) RawID() string { return c.id }

func (c *CellEntry) CellType() notebook.CellType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cellType == "" {
		return notebook.CellCode
	}
	return c.cellType
}

func (c *CellEntry) SetCellType(t notebook.CellType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cellType = t
}

// Source satisfies notebook.View by materializing the collaborative text.
func (c *CellEntry) Source() string { return c.source.String() }

// SourceText exposes the underlying collaborative text for Fill-in-place
// updates.
func (c *CellEntry) SourceText() *Text { return c.source }

// SetSource replaces the underlying Text pointer, used only when a cell
// previously had no collaborative text (§4.9 Update: "otherwise it is
// replaced with a new collaborative text").
func (c *CellEntry) SetSource(t *Text) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = t
}

func (c *CellEntry) Metadata() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

func (c *CellEntry) SetMetadata(m map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata = m
}

func (c *CellEntry) ExecutionCount() *int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.executionCount == nil {
		return nil
	}
	n := *c.executionCount
	return &n
}

func (c *CellEntry) SetExecutionCount(n *int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executionCount = n
}

func (c *CellEntry) Outputs() []notebook.Output {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]notebook.Output, len(c.outputs))
	copy(out, c.outputs)
	return out
}

func (c *CellEntry) SetOutputs(o []notebook.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs = o
}

// ToCell materializes a plain *notebook.Cell snapshot of this entry, used
// by snapshot/diff/search code that wants a value type.
func (c *CellEntry) ToCell() *notebook.Cell {
	return &notebook.Cell{
		ID:             c.RawID(),
		Type:           c.CellType(),
		Source:         c.Source(),
		Metadata:       c.Metadata(),
		ExecutionCount: c.ExecutionCount(),
		Outputs:        c.Outputs(),
	}
}

// Presence is the sideband awareness state of one remote participant
// (§4.3, §4.8).
type Presence struct {
	Username    string
	DisplayName string
	Initials    string
	Color       string
	// CursorCellIDs are the ids of cells this participant's cursors
	// currently fall within, per the materialized-position match in §4.8.
	CursorCellIDs []string
}

// SharedMap is a shared string-keyed map of JSON-encoded values, used for
// the lock table (§4.6) and reusable for any other single-value-per-key
// shared state.
type SharedMap struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewSharedMap() *SharedMap { return &SharedMap{values: map[string]string{}} }

func (m *SharedMap) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *SharedMap) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *SharedMap) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

func (m *SharedMap) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.values))
	for k := range m.values {
		out = append(out, k)
	}
	return out
}

// SharedSeq is an append-only sequence of JSON-encoded entries with a
// monotonic version counter decoupled from slice length, so pruning the
// backing slice never violates strict version monotonicity (§4.5,
// invariant 1 of §8).
type SharedSeq struct {
	mu          sync.Mutex
	entries     []string
	nextVersion int
	baseVersion int
}

func NewSharedSeq() *SharedSeq { return &SharedSeq{} }

// Append adds an entry and returns its freshly assigned version.
func (s *SharedSeq) Append(jsonEntry string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.nextVersion
	s.nextVersion++
	s.entries = append(s.entries, jsonEntry)
	return v
}

// All returns every retained entry (already-pruned entries are gone).
func (s *SharedSeq) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

// CurrentVersion returns the next version that will be assigned minus one,
// i.e. the version of the most recently appended entry (or -1 if empty).
func (s *SharedSeq) CurrentVersion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextVersion - 1
}

func (s *SharedSeq) BaseVersion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseVersion
}

// Prune trims the oldest entries once the retained count exceeds hardCap,
// advancing baseVersion by the number of entries removed (§4.5: "If the
// array length exceeds 2x the soft cap, the oldest excess is trimmed and a
// base_version is incremented so version monotonicity is preserved across
// pruning").
func (s *SharedSeq) Prune(hardCap int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) <= hardCap {
		return
	}
	excess := len(s.entries) - hardCap
	s.entries = s.entries[excess:]
	s.baseVersion += excess
}

// Document is the live collaborative document for one notebook path.
type Document struct {
	mu        sync.Mutex
	cells     []*CellEntry
	locks     *SharedMap
	changeLog *SharedSeq
	presence  map[string]*Presence

	// activeTx is the Tx for the Transact call currently holding mu, if
	// any. WithTx consults it so code reachable from inside an open
	// transaction (Backend methods, the change log, the lock table) joins
	// that transaction instead of recursing into Transact and deadlocking
	// on the non-reentrant mu.
	activeTx *Tx

	notifyMu sync.Mutex
	notify   chan struct{}

	synced bool
}

// NewDocument builds an empty live document, used once the session
// handshake + initial sync in §4.3 has populated it.
func NewDocument() *Document {
	return &Document{
		locks:     NewSharedMap(),
		changeLog: NewSharedSeq(),
		presence:  map[string]*Presence{},
		notify:    make(chan struct{}),
	}
}

// ReplaceCells installs the initial cell sequence received from the
// collaboration room's snapshot frame (§4.3 step 3). Called once, before
// the document is exposed to callers, so no transaction/broadcast is
// needed.
func (d *Document) ReplaceCells(cells []*CellEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cells = cells
}

// ApplyRemoteUpdate installs or removes a single cell at index, as
// broadcast by another participant's commit (§5: "the transport broadcasts
// updates to every other participant"). It bypasses Transact's caller-side
// semantics (no log/lock side effects here — those already happened on the
// committing participant) but still takes the document mutex and
// broadcasts to local watchers.
func (d *Document) ApplyRemoteUpdate(index int, cell *CellEntry, deleted bool) {
	d.mu.Lock()
	if deleted {
		if index >= 0 && index < len(d.cells) {
			d.cells = append(d.cells[:index], d.cells[index+1:]...)
		}
	} else if index >= 0 && index <= len(d.cells) {
		if index == len(d.cells) {
			d.cells = append(d.cells, cell)
		} else {
			d.cells[index] = cell
		}
	}
	d.mu.Unlock()
	d.broadcast()
}

// Locks returns the shared lock-table map (§4.6).
func (d *Document) Locks() *SharedMap { return d.locks }

// ChangeLog returns the shared change-log sequence (§4.5).
func (d *Document) ChangeLog() *SharedSeq { return d.changeLog }

// MarkSynced flips the document into the synced state (§4.3).
func (d *Document) MarkSynced() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.synced = true
}

func (d *Document) Synced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.synced
}

// SetPresence publishes or updates a remote participant's presence record.
func (d *Document) SetPresence(id string, p *Presence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p == nil {
		delete(d.presence, id)
		return
	}
	d.presence[id] = p
}

// PresenceSnapshot returns a copy of every participant's presence, keyed by
// participant id, excluding selfID.
func (d *Document) PresenceSnapshot(selfID string) map[string]Presence {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]Presence, len(d.presence))
	for id, p := range d.presence {
		if id == selfID {
			continue
		}
		out[id] = *p
	}
	return out
}

// NotifyChannel returns the current broadcast channel; it is closed (and
// replaced) every time Transact commits a change, mirroring the teacher's
// Kolabpad.notify channel.
func (d *Document) NotifyChannel() <-chan struct{} {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	return d.notify
}

func (d *Document) broadcast() {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	close(d.notify)
	d.notify = make(chan struct{})
}

// Tx is the view of a Document available inside a single atomic
// transaction (§4.5/§4.6/§4.9: "executes inside a single document
// transaction").
type Tx struct {
	doc *Document
}

func (tx *Tx) CellsLen() int { return len(tx.doc.cells) }

func (tx *Tx) Cells() []*CellEntry { return tx.doc.cells }

func (tx *Tx) CellAt(i int) *CellEntry {
	if i < 0 || i >= len(tx.doc.cells) {
		return nil
	}
	return tx.doc.cells[i]
}

func (tx *Tx) InsertCellAt(i int, c *CellEntry) {
	cells := tx.doc.cells
	if i < 0 || i > len(cells) {
		i = len(cells)
	}
	cells = append(cells, nil)
	copy(cells[i+1:], cells[i:])
	cells[i] = c
	tx.doc.cells = cells
}

func (tx *Tx) DeleteCellAt(i int) *CellEntry {
	cells := tx.doc.cells
	if i < 0 || i >= len(cells) {
		return nil
	}
	removed := cells[i]
	tx.doc.cells = append(cells[:i], cells[i+1:]...)
	return removed
}

func (tx *Tx) MoveCell(from, to int) {
	cells := tx.doc.cells
	if from < 0 || from >= len(cells) {
		return
	}
	c := cells[from]
	tx.doc.cells = append(cells[:from], cells[from+1:]...)
	if to > from {
		to--
	}
	if to < 0 {
		to = 0
	}
	if to > len(tx.doc.cells) {
		to = len(tx.doc.cells)
	}
	rest := tx.doc.cells
	rest = append(rest, nil)
	copy(rest[to+1:], rest[to:])
	rest[to] = c
	tx.doc.cells = rest
}

func (tx *Tx) Locks() *SharedMap     { return tx.doc.locks }
func (tx *Tx) ChangeLog() *SharedSeq { return tx.doc.changeLog }

// Transact runs fn inside the document's single critical section. All pure
// state manipulation in this engine (lock check, change log append,
// identity resolution) happens without suspension between enter and exit
// (§5), so this plain mutex is sufficient: nothing inside fn ever performs
// network or file I/O.
func (d *Document) Transact(fn func(tx *Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &Tx{doc: d}
	d.activeTx = tx
	defer func() { d.activeTx = nil }()
	err := fn(tx)
	if err == nil {
		d.broadcast()
	}
	return err
}

// WithTx runs fn against the transaction already open on this document, if
// one is (i.e. the caller is reachable from inside a Transact closure on the
// same goroutine); otherwise it opens one itself via Transact. This is how
// Backend methods, SharedLog.Record and SharedTable's methods join an
// Engine-level transaction rather than re-entering Transact and deadlocking
// on mu.
func (d *Document) WithTx(fn func(tx *Tx) error) error {
	if d.activeTx != nil {
		return fn(d.activeTx)
	}
	return d.Transact(fn)
}
