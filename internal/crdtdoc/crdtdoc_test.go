package crdtdoc

import (
	"testing"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
)

func TestSharedSeqVersionMonotonicAcrossPrune(t *testing.T) {
	seq := NewSharedSeq()
	var lastVersion int
	for i := 0; i < 10; i++ {
		v := seq.Append("entry")
		if i > 0 && v <= lastVersion {
			t.Fatalf("version did not increase: %d <= %d", v, lastVersion)
		}
		lastVersion = v
	}

	seq.Prune(3)
	if got := len(seq.All()); got != 3 {
		t.Fatalf("expected 3 entries retained, got %d", got)
	}

	v := seq.Append("entry")
	if v <= lastVersion {
		t.Fatalf("version not monotonic after prune: %d <= %d", v, lastVersion)
	}
}

func TestTextFillPreservesPointerIdentity(t *testing.T) {
	entry := NewCellEntry("id1", notebook.CellCode, "original", nil, nil, nil)
	text := entry.SourceText()
	text.Fill("refilled")
	if entry.SourceText() != text {
		t.Fatalf("expected Fill to keep the cell's Text pointer")
	}
	if got := text.String(); got != "refilled" {
		t.Fatalf("expected refilled, got %q", got)
	}
}

func TestCellEntrySatisfiesView(t *testing.T) {
	entry := NewCellEntry("id1", notebook.CellCode, "x = 1", nil, nil, nil)
	var v notebook.View = entry
	if v.Source() != "x = 1" {
		t.Fatalf("unexpected source: %q", v.Source())
	}
	id, ok := v.ID()
	if !ok || id != "id1" {
		t.Fatalf("unexpected id: %q %v", id, ok)
	}
}

func TestDocumentTransactInsertAndMove(t *testing.T) {
	doc := NewDocument()
	err := doc.Transact(func(tx *Tx) error {
		tx.InsertCellAt(0, NewCellEntry("a", notebook.CellCode, "1", nil, nil, nil))
		tx.InsertCellAt(1, NewCellEntry("b", notebook.CellCode, "2", nil, nil, nil))
		tx.InsertCellAt(2, NewCellEntry("c", notebook.CellCode, "3", nil, nil, nil))
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}

	err = doc.Transact(func(tx *Tx) error {
		tx.MoveCell(0, 2)
		return nil
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}

	var ids []string
	_ = doc.Transact(func(tx *Tx) error {
		for _, c := range tx.Cells() {
			ids = append(ids, c.RawID())
		}
		return nil
	})
	want := []string{"b", "a", "c"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestPresenceSnapshotExcludesSelf(t *testing.T) {
	doc := NewDocument()
	doc.SetPresence("self", &Presence{Username: "self"})
	doc.SetPresence("other", &Presence{Username: "other"})

	snap := doc.PresenceSnapshot("self")
	if _, ok := snap["self"]; ok {
		t.Fatalf("expected self excluded from presence snapshot")
	}
	if _, ok := snap["other"]; !ok {
		t.Fatalf("expected other present in presence snapshot")
	}
}
