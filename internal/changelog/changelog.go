// Package changelog implements the append-only, version-stamped change log
// (§4.5 of spec.md), with both the in-memory and shared-document storage
// variants described in §3/§9.
package changelog

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/jupyter-collab/notebook-engine/internal/crdtdoc"
	"github.com/jupyter-collab/notebook-engine/internal/notebook"
)

// Operation is one of the mutation kinds that may be recorded.
type Operation string

const (
	OpInsert       Operation = "insert"
	OpUpdate       Operation = "update"
	OpDelete       Operation = "delete"
	OpMove         Operation = "move"
	OpCopy         Operation = "copy"
	OpExecute      Operation = "execute"
	OpChangeType   Operation = "change_type"
	OpClearOutputs Operation = "clear_outputs"
	OpBatchUpdate  Operation = "batch_update"
	OpRestore      Operation = "restore"
)

// Entry is a single change-log record (§3).
type Entry struct {
	Version   int       `json:"version"`
	Timestamp string    `json:"timestamp"`
	Operation Operation `json:"operation"`
	CellID    string    `json:"cell_id"`
	DisplayID string    `json:"display_id"`
	Index     int       `json:"index"`
	OldSource *string   `json:"old_source,omitempty"`
	NewSource *string   `json:"new_source,omitempty"`
	Client    string    `json:"client,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// NewEntry fills in DisplayID from CellID and the timestamp; Version is
// assigned by Record.
func NewEntry(op Operation, cellID string, index int) Entry {
	return Entry{
		Operation: op,
		CellID:    cellID,
		DisplayID: notebook.TruncatedID(cellID),
		Index:     index,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Summary additionally reports the number of distinct cell ids touched
// (§4.5 summary()).
type Summary struct {
	Entries       []Entry
	DistinctCells int
}

// Log is the capability set every caller uses, regardless of backend.
type Log interface {
	// Record is atomic and returns the newly assigned version.
	Record(e Entry) (int, error)
	HistoryFor(cellQuery string, limit int) []Entry
	// Since returns entries with version greater than `version`, plus the
	// log's current version for the caller to poll from next.
	Since(version, limit int) (entries []Entry, current int)
	Summary(limit int) Summary
	LastDeletedSource(cellQuery string) (string, bool)
	BaseVersion() int
}

func matchesQuery(entry Entry, query string) bool {
	if query == "" {
		return true
	}
	return strings.HasPrefix(entry.CellID, query) || strings.HasPrefix(entry.DisplayID, query)
}

func tail(entries []Entry, limit int) []Entry {
	if limit <= 0 || limit >= len(entries) {
		out := make([]Entry, len(entries))
		copy(out, entries)
		return out
	}
	out := make([]Entry, limit)
	copy(out, entries[len(entries)-limit:])
	return out
}

func distinctCellCount(entries []Entry) int {
	seen := map[string]struct{}{}
	for _, e := range entries {
		seen[e.CellID] = struct{}{}
	}
	return len(seen)
}

func lastDeletedSource(entries []Entry, query string) (string, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Operation != OpDelete {
			continue
		}
		if !matchesQuery(e, query) {
			continue
		}
		if e.OldSource != nil && *e.OldSource != "" {
			return *e.OldSource, true
		}
	}
	return "", false
}

// InMemoryLog is the per-path, in-process-only variant used by the
// filesystem backend (§3: cap 500, pruned oldest-first; no base_version
// semantics are specified for this variant in spec.md, but the version
// counter remains monotonic regardless of pruning, same mechanism as the
// shared variant).
type InMemoryLog struct {
	mu          sync.Mutex
	entries     []Entry
	nextVersion int
	baseVersion int
	cap         int
}

// NewInMemoryLog builds a log that prunes past softCap entries (default
// 500 per §3).
func NewInMemoryLog(softCap int) *InMemoryLog {
	if softCap <= 0 {
		softCap = 500
	}
	return &InMemoryLog{cap: softCap}
}

func (l *InMemoryLog) Record(e Entry) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Version = l.nextVersion
	l.nextVersion++
	e.DisplayID = notebook.TruncatedID(e.CellID)
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	l.entries = append(l.entries, e)

	if len(l.entries) > l.cap {
		excess := len(l.entries) - l.cap
		l.entries = l.entries[excess:]
		l.baseVersion += excess
	}

	return e.Version, nil
}

func (l *InMemoryLog) HistoryFor(cellQuery string, limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []Entry
	for _, e := range l.entries {
		if matchesQuery(e, cellQuery) {
			matched = append(matched, e)
		}
	}
	return tail(matched, limit)
}

func (l *InMemoryLog) Since(version, limit int) ([]Entry, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []Entry
	for _, e := range l.entries {
		if e.Version > version {
			matched = append(matched, e)
		}
	}
	current := l.nextVersion - 1
	return tail(matched, limit), current
}

func (l *InMemoryLog) Summary(limit int) Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := tail(l.entries, limit)
	return Summary{Entries: entries, DistinctCells: distinctCellCount(l.entries)}
}

func (l *InMemoryLog) LastDeletedSource(cellQuery string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lastDeletedSource(l.entries, cellQuery)
}

func (l *InMemoryLog) BaseVersion() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.baseVersion
}

// SharedLog is the shared-document-backed variant (§3: cap 1000, soft
// factor 2 => hard cap 2000). Every mutating method runs inside the
// document's single transaction (§4.5).
type SharedLog struct {
	doc     *crdtdoc.Document
	softCap int
}

// NewSharedLog wraps doc's change-log sequence with the soft/hard cap
// described in §3 (default soft cap 1000, hard cap 2x that).
func NewSharedLog(doc *crdtdoc.Document, softCap int) *SharedLog {
	if softCap <= 0 {
		softCap = 1000
	}
	return &SharedLog{doc: doc, softCap: softCap}
}

func (l *SharedLog) Record(e Entry) (int, error) {
	var version int
	err := l.doc.WithTx(func(tx *crdtdoc.Tx) error {
		e.DisplayID = notebook.TruncatedID(e.CellID)
		if e.Timestamp == "" {
			e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		version = tx.ChangeLog().Append(string(data))
		tx.ChangeLog().Prune(l.softCap * 2)
		return nil
	})
	return version, err
}

func (l *SharedLog) decodeAll() []Entry {
	raw := l.doc.ChangeLog().All()
	entries := make([]Entry, 0, len(raw))
	for _, s := range raw {
		var e Entry
		if json.Unmarshal([]byte(s), &e) == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func (l *SharedLog) HistoryFor(cellQuery string, limit int) []Entry {
	var matched []Entry
	for _, e := range l.decodeAll() {
		if matchesQuery(e, cellQuery) {
			matched = append(matched, e)
		}
	}
	return tail(matched, limit)
}

func (l *SharedLog) Since(version, limit int) ([]Entry, int) {
	entries := l.decodeAll()
	var matched []Entry
	for _, e := range entries {
		if e.Version > version {
			matched = append(matched, e)
		}
	}
	return tail(matched, limit), l.doc.ChangeLog().CurrentVersion()
}

func (l *SharedLog) Summary(limit int) Summary {
	entries := l.decodeAll()
	return Summary{Entries: tail(entries, limit), DistinctCells: distinctCellCount(entries)}
}

func (l *SharedLog) LastDeletedSource(cellQuery string) (string, bool) {
	return lastDeletedSource(l.decodeAll(), cellQuery)
}

// BaseVersion is tracked but, per Open Question (ii) in DESIGN.md, not
// consumed anywhere else in this engine — it is exposed purely for callers
// that want to detect (not resolve) a gap in their polling window.
func (l *SharedLog) BaseVersion() int {
	return l.doc.ChangeLog().BaseVersion()
}

var (
	_ Log = (*InMemoryLog)(nil)
	_ Log = (*SharedLog)(nil)
)
