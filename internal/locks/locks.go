// Package locks implements the advisory per-cell lock table (§4.6 of
// spec.md), with both the in-memory and shared-document storage variants.
package locks

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jupyter-collab/notebook-engine/internal/crdtdoc"
)

// DefaultOwner is the reserved owner identity used when a caller doesn't
// supply one (§3, §5).
const DefaultOwner = "claude-code"

// DefaultTTL is the lock lifetime applied when a caller doesn't supply one
// (§3).
const DefaultTTL = 10 * time.Minute

// Entry is one active lock (§3).
type Entry struct {
	CellID    string    `json:"cell_id"`
	Path      string    `json:"path"`
	Owner     string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (e Entry) expired(now time.Time) bool { return !e.ExpiresAt.After(now) }

// AcquireResult reports, per requested id, whether it was acquired or
// blocked by a foreign owner (§8 end-to-end scenario: two-agent race).
type AcquireResult struct {
	Acquired []Entry
	Blocked  []Entry // Owner field carries the blocking owner
}

// Table is the capability set every caller uses, regardless of backend.
type Table interface {
	Acquire(path string, cellIDs []string, owner string, ttl time.Duration) AcquireResult
	// Release removes entries owned by owner (or any, if force) for the
	// given cellIDs; returns which were actually released.
	Release(path string, cellIDs []string, owner string, force bool) []string
	// Check returns the current lock iff it exists, is unexpired, and the
	// owner differs from caller; expired locks are deleted as a side
	// effect.
	Check(path, cellID, caller string) (Entry, bool)
	List(path string) []Entry
	Clear(path string)
	// ReleaseAll is a cross-path sweep used on caller shutdown. See
	// DESIGN.md Open Question (i): this is in-memory-only, scoped to locks
	// this process is aware of.
	ReleaseAll(owner string)
}

func keyFor(path, cellID string) string { return path + "\x00" + cellID }

// InMemoryTable backs the filesystem-backend path (no shared transport).
type InMemoryTable struct {
	mu      sync.Mutex
	entries map[string]Entry // keyed by path+cellID
}

func NewInMemoryTable() *InMemoryTable {
	return &InMemoryTable{entries: map[string]Entry{}}
}

func (t *InMemoryTable) Acquire(path string, cellIDs []string, owner string, ttl time.Duration) AcquireResult {
	if owner == "" {
		owner = DefaultOwner
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var res AcquireResult
	for _, id := range cellIDs {
		k := keyFor(path, id)
		existing, ok := t.entries[k]
		if !ok || existing.expired(now) || existing.Owner == owner {
			entry := Entry{CellID: id, Path: path, Owner: owner, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
			t.entries[k] = entry
			res.Acquired = append(res.Acquired, entry)
			continue
		}
		res.Blocked = append(res.Blocked, existing)
	}
	return res
}

func (t *InMemoryTable) Release(path string, cellIDs []string, owner string, force bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var released []string
	for _, id := range cellIDs {
		k := keyFor(path, id)
		existing, ok := t.entries[k]
		if !ok {
			continue
		}
		if !force && existing.Owner != owner {
			continue
		}
		delete(t.entries, k)
		released = append(released, id)
	}
	return released
}

func (t *InMemoryTable) Check(path, cellID, caller string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := keyFor(path, cellID)
	existing, ok := t.entries[k]
	if !ok {
		return Entry{}, false
	}
	if existing.expired(time.Now()) {
		delete(t.entries, k)
		return Entry{}, false
	}
	if existing.Owner == caller {
		return Entry{}, false
	}
	return existing, true
}

func (t *InMemoryTable) List(path string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	var out []Entry
	for k, e := range t.entries {
		if e.Path != path {
			continue
		}
		if e.expired(now) {
			delete(t.entries, k)
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.Before(out[j].AcquiredAt) })
	return out
}

func (t *InMemoryTable) Clear(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.entries {
		if e.Path == path {
			delete(t.entries, k)
		}
	}
}

func (t *InMemoryTable) ReleaseAll(owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.entries {
		if e.Owner == owner {
			delete(t.entries, k)
		}
	}
}

// SharedTable stores each lock entry as a single JSON-encoded string value
// keyed by cell id in the live document's shared map (§9: "Locks as CRDT
// map entries"). One SharedTable instance is scoped to a single document
// (single path); acquire/release run inside the document's transaction so
// concurrent acquire from two processes resolves to one winner per §5.
type SharedTable struct {
	doc  *crdtdoc.Document
	path string
}

func NewSharedTable(doc *crdtdoc.Document, path string) *SharedTable {
	return &SharedTable{doc: doc, path: path}
}

func (t *SharedTable) Acquire(path string, cellIDs []string, owner string, ttl time.Duration) AcquireResult {
	if owner == "" {
		owner = DefaultOwner
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()

	var res AcquireResult
	_ = t.doc.WithTx(func(tx *crdtdoc.Tx) error {
		for _, id := range cellIDs {
			existing, ok := t.decode(tx.Locks(), id)
			if !ok || existing.expired(now) || existing.Owner == owner {
				entry := Entry{CellID: id, Path: path, Owner: owner, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
				t.encode(tx.Locks(), id, entry)
				res.Acquired = append(res.Acquired, entry)
				continue
			}
			res.Blocked = append(res.Blocked, existing)
		}
		return nil
	})
	return res
}

func (t *SharedTable) Release(path string, cellIDs []string, owner string, force bool) []string {
	var released []string
	_ = t.doc.WithTx(func(tx *crdtdoc.Tx) error {
		for _, id := range cellIDs {
			existing, ok := t.decode(tx.Locks(), id)
			if !ok {
				continue
			}
			if !force && existing.Owner != owner {
				continue
			}
			tx.Locks().Delete(id)
			released = append(released, id)
		}
		return nil
	})
	return released
}

func (t *SharedTable) Check(path, cellID, caller string) (Entry, bool) {
	var (
		found Entry
		ok    bool
	)
	_ = t.doc.WithTx(func(tx *crdtdoc.Tx) error {
		existing, exists := t.decode(tx.Locks(), cellID)
		if !exists {
			return nil
		}
		if existing.expired(time.Now()) {
			tx.Locks().Delete(cellID)
			return nil
		}
		if existing.Owner == caller {
			return nil
		}
		found, ok = existing, true
		return nil
	})
	return found, ok
}

func (t *SharedTable) List(path string) []Entry {
	var out []Entry
	_ = t.doc.WithTx(func(tx *crdtdoc.Tx) error {
		now := time.Now()
		for _, id := range tx.Locks().Keys() {
			existing, ok := t.decode(tx.Locks(), id)
			if !ok {
				continue
			}
			if existing.expired(now) {
				tx.Locks().Delete(id)
				continue
			}
			out = append(out, existing)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.Before(out[j].AcquiredAt) })
	return out
}

func (t *SharedTable) Clear(path string) {
	_ = t.doc.WithTx(func(tx *crdtdoc.Tx) error {
		for _, id := range tx.Locks().Keys() {
			tx.Locks().Delete(id)
		}
		return nil
	})
}

// ReleaseAll: see DESIGN.md Open Question (i). Scoped to this process's
// view of this single document; no cross-document or cross-process scan is
// performed.
func (t *SharedTable) ReleaseAll(owner string) {
	_ = t.doc.WithTx(func(tx *crdtdoc.Tx) error {
		for _, id := range tx.Locks().Keys() {
			existing, ok := t.decode(tx.Locks(), id)
			if ok && existing.Owner == owner {
				tx.Locks().Delete(id)
			}
		}
		return nil
	})
}

func (t *SharedTable) decode(m *crdtdoc.SharedMap, cellID string) (Entry, bool) {
	raw, ok := m.Get(cellID)
	if !ok {
		return Entry{}, false
	}
	var e Entry
	if json.Unmarshal([]byte(raw), &e) != nil {
		return Entry{}, false
	}
	return e, true
}

func (t *SharedTable) encode(m *crdtdoc.SharedMap, cellID string, e Entry) {
	data, _ := json.Marshal(e)
	m.Set(cellID, string(data))
}

var (
	_ Table = (*InMemoryTable)(nil)
	_ Table = (*SharedTable)(nil)
)
