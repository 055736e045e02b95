package snapshot

import (
	"testing"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
)

func cellsOf(src ...string) []notebook.View {
	views := make([]notebook.View, len(src))
	for i, s := range src {
		views[i] = notebook.NewPlainView(&notebook.Cell{ID: string(rune('a' + i)), Type: notebook.CellCode, Source: s})
	}
	return views
}

func TestCreateThenRestoreThenDiffIsAllUnchanged(t *testing.T) {
	store := NewInMemoryStore(0)
	cells := Capture(cellsOf("a = 1", "b = 2", "c = 3"))

	store.Create("n.ipynb", "v1", cells, "")
	snap, ok := store.Get("n.ipynb", "v1")
	if !ok {
		t.Fatalf("expected snapshot to exist")
	}

	target := &fakeTarget{cells: []Cell{{ID: "stale"}}}
	if err := Restore(target, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	diff := Diff(snap.Cells, target.cells)
	if diff.Unchanged != 3|| diff.Modified != 0 || diff.Added != 0 || diff.Deleted != 0 {
		t.Fatalf("unexpected diff: %+v", diff)
	}
}

func TestDiffReportsUnchangedAddedDeleted(t *testing.T) {
	before := []Cell{
		{ID: "a", Source: "x = 1"},
		{ID: "b", Source: "y = 2"},
	}
	after := []Cell{
		{ID: "a", Source: "x = 1"},       // unchanged
		{ID: "c", Source: "z = 3"},       // added
	}
	// b is deleted, a is unchanged, c is added.

	diff := Diff(before, after)
	if diff.Unchanged != 1 || diff.Deleted != 1 || diff.Added != 1 || diff.Modified != 0 {
		t.Fatalf("unexpected diff: %+v", diff)
	}
}

func TestDiffMarksChangedSourceAsModified(t *testing.T) {
	before := []Cell{{ID: "a", Source: "old"}}
	after := []Cell{{ID: "a", Source: "new"}}

	diff := Diff(before, after)
	if diff.Modified != 1 || diff.Unchanged != 0 {
		t.Fatalf("unexpected diff: %+v", diff)
	}
	if diff.Entries[0].OldSource != "old" || diff.Entries[0].NewSource != "new" {
		t.Fatalf("unexpected entry: %+v", diff.Entries[0])
	}
}

func TestStoreCapEvictsOldest(t *testing.T) {
	store := NewInMemoryStore(2)
	store.Create("n.ipynb", "v1", nil, "")
	store.Create("n.ipynb", "v2", nil, "")
	store.Create("n.ipynb", "v3", nil, "")

	if _, ok := store.Get("n.ipynb", "v1"); ok {
		t.Fatalf("expected oldest snapshot v1 to be evicted")
	}
	if _, ok := store.Get("n.ipynb", "v3"); !ok {
		t.Fatalf("expected newest snapshot v3 to remain")
	}
	if len(store.List("n.ipynb")) != 2 {
		t.Fatalf("expected cap of 2 retained")
	}
}

type fakeTarget struct {
	cells []Cell
}

func (f *fakeTarget) Len() int       { return len(f.cells) }
func (f *fakeTarget) RemoveAt(i int) { f.cells = append(f.cells[:i], f.cells[i+1:]...) }
func (f *fakeTarget) InsertRestored(i int, c Cell) {
	f.cells = append(f.cells, Cell{})
	copy(f.cells[i+1:], f.cells[i:])
	f.cells[i] = c
}

func TestRestoreReplacesEntireSequence(t *testing.T) {
	target := &fakeTarget{cells: []Cell{{ID: "old1"}, {ID: "old2"}}}
	snap := Snapshot{Cells: []Cell{{ID: "new1"}, {ID: "new2"}, {ID: "new3"}}}

	if err := Restore(target, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(target.cells) != 3 {
		t.Fatalf("expected 3 cells after restore, got %d", len(target.cells))
	}
	for i, c := range target.cells {
		if c.ID != snap.Cells[i].ID {
			t.Fatalf("cell %d id = %s, want %s", i, c.ID, snap.Cells[i].ID)
		}
	}
}
