// Package snapshot implements named frozen captures of a notebook's cell
// sequence, restore, and diff (§4.7 of spec.md).
package snapshot

import (
	"sort"
	"sync"
	"time"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

// Cell is the frozen subset of fields a snapshot captures: outputs and
// execution counts are deliberately dropped (§4.7).
type Cell struct {
	ID       string
	Type     notebook.CellType
	Source   string
	Metadata map[string]any
}

// Snapshot is a named frozen copy of a cell sequence, keyed by (path, name)
// (§3).
type Snapshot struct {
	Name        string
	Path        string
	CreatedAt   time.Time
	Description string
	Cells       []Cell
}

func captureCell(v notebook.View) Cell {
	id, _ := v.ID()
	var metadata map[string]any
	// View doesn't expose Metadata directly (only the narrow read set in
	// §4.1); callers pass richer handles that also satisfy MetadataView.
	if mv, ok := v.(metadataView); ok {
		metadata = mv.Metadata()
	}
	clonedMeta := make(map[string]any, len(metadata))
	for k, val := range metadata {
		clonedMeta[k] = val
	}
	return Cell{ID: id, Type: v.CellType(), Source: v.Source(), Metadata: clonedMeta}
}

// metadataView is satisfied by cell handles that also expose metadata
// (both notebook.PlainView and crdtdoc.CellEntry do).
type metadataView interface {
	Metadata() map[string]any
}

// Target is the minimal capability set restore needs from whichever
// backend it is restoring into (implemented structurally by both the
// filesystem backend's in-memory notebook wrapper and the live backend's
// crdtdoc.Document, via the mutate package's Backend type).
type Target interface {
	Len() int
	RemoveAt(i int)
	// InsertRestored re-materializes a snapshot cell at index i: code cells
	// get empty outputs and a nil execution count, metadata is deep
	// copied, and the original id is preserved (§4.7).
	InsertRestored(i int, c Cell)
}

// Store is the capability set every caller uses, regardless of backend.
type Store interface {
	Create(path, name string, cells []Cell, description string) Snapshot
	Get(path, name string) (Snapshot, bool)
	List(path string) []Snapshot
	Delete(path, name string) bool
}

// Capture builds the frozen Cell slice from a sequence of views, in order.
func Capture(views []notebook.View) []Cell {
	cells := make([]Cell, 0, len(views))
	for _, v := range views {
		cells = append(cells, captureCell(v))
	}
	return cells
}

// InMemoryStore is used by both backends; a notebook's snapshots are not
// themselves part of the CRDT document in this engine (spec.md doesn't
// require the snapshot store itself to be shared — only cells/locks/log
// are named as CRDT-held state in §3), but a live-backend deployment still
// caps at 20 per path with oldest-pruned, same as described for the shared
// variant.
type InMemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]map[string]*Snapshot // path -> name -> snapshot
	order     map[string][]string             // path -> names in creation order
	cap       int                             // 0 = unbounded (filesystem backend)
}

// NewInMemoryStore builds a store; pass cap=20 for the shared-backend cap
// from §3, or 0 for the filesystem backend (uncapped).
func NewInMemoryStore(cap int) *InMemoryStore {
	return &InMemoryStore{
		snapshots: map[string]map[string]*Snapshot{},
		order:     map[string][]string{},
		cap:       cap,
	}
}

func (s *InMemoryStore) Create(path, name string, cells []Cell, description string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshots[path] == nil {
		s.snapshots[path] = map[string]*Snapshot{}
	}

	snap := &Snapshot{Name: name, Path: path, CreatedAt: time.Now(), Description: description, Cells: cells}

	if _, existed := s.snapshots[path][name]; !existed {
		s.order[path] = append(s.order[path], name)
	}
	s.snapshots[path][name] = snap

	if s.cap > 0 && len(s.order[path]) > s.cap {
		oldest := s.order[path][0]
		s.order[path] = s.order[path][1:]
		delete(s.snapshots[path], oldest)
	}

	return *snap
}

func (s *InMemoryStore) Get(path, name string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName, ok := s.snapshots[path]
	if !ok {
		return Snapshot{}, false
	}
	snap, ok := byName[name]
	if !ok {
		return Snapshot{}, false
	}
	return *snap, true
}

func (s *InMemoryStore) List(path string) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName := s.snapshots[path]
	out := make([]Snapshot, 0, len(byName))
	for _, snap := range byName {
		out = append(out, *snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *InMemoryStore) Delete(path, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName, ok := s.snapshots[path]
	if !ok {
		return false
	}
	if _, ok := byName[name]; !ok {
		return false
	}
	delete(byName, name)
	names := s.order[path]
	for i, n := range names {
		if n == name {
			s.order[path] = append(names[:i], names[i+1:]...)
			break
		}
	}
	return true
}

// Restore replaces target's entire cell sequence with the snapshot's
// materialized cells (§4.7): existing cells removed, then snapshot entries
// re-inserted with empty outputs / nil execution count for code cells,
// deep-copied metadata, and the original id preserved.
func Restore(target Target, snap Snapshot) error {
	for target.Len() > 0 {
		target.RemoveAt(0)
	}
	for i, c := range snap.Cells {
		target.InsertRestored(i, c)
	}
	return nil
}

// CellStatus is one of the four diff outcomes (§4.7).
type CellStatus string

const (
	StatusUnchanged CellStatus = "unchanged"
	StatusModified  CellStatus = "modified"
	StatusAdded     CellStatus = "added"
	StatusDeleted   CellStatus = "deleted"
)

// DiffEntry reports one cell's status between a snapshot and the current
// sequence.
type DiffEntry struct {
	CellID    string
	Status    CellStatus
	OldSource string
	NewSource string
}

// DiffReport aggregates counts alongside the per-cell entries (§8 end-to-
// end scenario).
type DiffReport struct {
	Entries   []DiffEntry
	Unchanged int
	Modified  int
	Added     int
	Deleted   int
}

// Diff pairs snapshot cells with current cells by id (§4.7).
func Diff(snap []Cell, current []Cell) DiffReport {
	var report DiffReport

	currentByID := make(map[string]Cell, len(current))
	currentOrder := make([]string, 0, len(current))
	for _, c := range current {
		currentByID[c.ID] = c
		currentOrder = append(currentOrder, c.ID)
	}

	snapByID := make(map[string]Cell, len(snap))
	seen := make(map[string]bool, len(snap))
	for _, c := range snap {
		snapByID[c.ID] = c
	}

	for _, sc := range snap {
		seen[sc.ID] = true
		cc, ok := currentByID[sc.ID]
		if !ok {
			report.Entries = append(report.Entries, DiffEntry{CellID: sc.ID, Status: StatusDeleted, OldSource: sc.Source})
			report.Deleted++
			continue
		}
		if cc.Source == sc.Source {
			report.Entries = append(report.Entries, DiffEntry{CellID: sc.ID, Status: StatusUnchanged, OldSource: sc.Source, NewSource: cc.Source})
			report.Unchanged++
		} else {
			report.Entries = append(report.Entries, DiffEntry{CellID: sc.ID, Status: StatusModified, OldSource: sc.Source, NewSource: cc.Source})
			report.Modified++
		}
	}

	for _, id := range currentOrder {
		if seen[id] {
			continue
		}
		report.Entries = append(report.Entries, DiffEntry{CellID: id, Status: StatusAdded, NewSource: currentByID[id].Source})
		report.Added++
	}

	return report
}

// NotFoundError builds the error for a snapshot name that does not resolve; kept
// here so tool-dispatch code can build a consistent error without
// importing notebookerr directly from this package's call sites.
func NotFoundError(name string) error {
	return &notebookerr.NotFound{What: "snapshot " + name}
}

var _ Store = (*InMemoryStore)(nil)
