package mutate

import (
	"testing"
	"time"

	"github.com/jupyter-collab/notebook-engine/internal/changelog"
	"github.com/jupyter-collab/notebook-engine/internal/locks"
	"github.com/jupyter-collab/notebook-engine/internal/notebook"
	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

func newTestEngine(sources ...string) (*Engine, *NotebookBackend) {
	cells := make([]*notebook.Cell, len(sources))
	for i, s := range sources {
		cells[i] = &notebook.Cell{ID: idFor(i), Type: notebook.CellCode, Source: s, Metadata: map[string]any{}}
	}
	nb := &notebook.Notebook{Cells: cells, Metadata: map[string]any{}, NBFormat: 4, NBFormatMinor: 5}
	backend := NewNotebookBackend(nb)
	engine := &Engine{
		Backend: backend,
		Log:     changelog.NewInMemoryLog(0),
		Locks:   locks.NewInMemoryTable(),
		Path:    "n.ipynb",
	}
	return engine, backend
}

func idFor(i int) string {
	return string(rune('a' + i))
}

func TestInsertAppendsWhenIndexNil(t *testing.T) {
	engine, backend := newTestEngine("x = 1")
	id, err := engine.Insert("", nil, "", "y = 2", notebook.CellCode, Options{ClientName: "agent"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if backend.Len() != 2 {
		t.Fatalf("expected 2 cells, got %d", backend.Len())
	}
	if backend.View(1).Source() != "y = 2" {
		t.Fatalf("expected new cell appended at end")
	}
	if id == "" {
		t.Fatalf("expected a generated id")
	}
}

func TestInsertAfterSourceCellID(t *testing.T) {
	engine, backend := newTestEngine("a = 1", "b = 2")
	_, err := engine.Insert(idFor(0), nil, "", "between", notebook.CellCode, Options{})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if backend.View(1).Source() != "between" {
		t.Fatalf("expected inserted cell right after source cell, got %q", backend.View(1).Source())
	}
}

func TestInsertOutOfRangeIndexFails(t *testing.T) {
	engine, _ := newTestEngine("a = 1")
	idx := 5
	_, err := engine.Insert("", &idx, "", "x", notebook.CellCode, Options{})
	if _, ok := err.(*notebookerr.OutOfRange); !ok {
		t.Fatalf("expected OutOfRange, got %v", err)
	}
}

func TestUpdateRecordsOldAndNewSource(t *testing.T) {
	engine, backend := newTestEngine("old")
	idx := 0
	err := engine.Update(Selector{Index: &idx}, "new", Options{ClientName: "agent"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if backend.View(0).Source() != "new" {
		t.Fatalf("expected source updated")
	}
	history := engine.Log.HistoryFor(idFor(0), 0)
	if len(history) != 1 || history[0].OldSource == nil || *history[0].OldSource != "old" || history[0].NewSource == nil || *history[0].NewSource != "new" {
		t.Fatalf("expected one update entry with old %q and new %q, got %+v", "old", "new", history)
	}
}

func TestDeleteRemovesCellAndReturnsIt(t *testing.T) {
	engine, backend := newTestEngine("a", "b")
	idx := 0
	deleted, err := engine.Delete(Selector{Index: &idx}, Options{})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.Source != "a" {
		t.Fatalf("expected deleted cell source 'a', got %q", deleted.Source)
	}
	if backend.Len() != 1 {
		t.Fatalf("expected 1 cell remaining, got %d", backend.Len())
	}
}

func TestDeleteCellsRangeStartEqualsEndDeletesOne(t *testing.T) {
	engine, backend := newTestEngine("a", "b", "c")
	zero := 0
	deleted, err := engine.DeleteCells(&zero, &zero, nil, Options{})
	if err != nil {
		t.Fatalf("delete cells: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected exactly 1 deleted cell, got %d", len(deleted))
	}
	if backend.Len() != 2 {
		t.Fatalf("expected 2 cells remaining, got %d", backend.Len())
	}
}

func TestDeleteCellsStartGreaterThanEndIsConflicting(t *testing.T) {
	engine, _ := newTestEngine("a", "b", "c")
	start, end := 2, 0
	_, err := engine.DeleteCells(&start, &end, nil, Options{})
	if _, ok := err.(*notebookerr.ConflictingArgs); !ok {
		t.Fatalf("expected ConflictingArgs, got %v", err)
	}
}

func TestChangeTypeToCodeAddsEmptyOutputs(t *testing.T) {
	engine, backend := newTestEngine("# heading")
	backend.SetCellType(0, notebook.CellMarkdown)
	idx := 0
	if err := engine.ChangeType(Selector{Index: &idx}, notebook.CellCode, Options{}); err != nil {
		t.Fatalf("change type: %v", err)
	}
	if backend.View(0).CellType() != notebook.CellCode {
		t.Fatalf("expected cell type code")
	}
	if backend.View(0).Outputs() == nil {
		t.Fatalf("expected empty (non-nil) outputs after becoming code")
	}
}

func TestClearOutputsAllOnlyTouchesCodeCells(t *testing.T) {
	engine, backend := newTestEngine("code1", "markdown")
	backend.SetCellType(1, notebook.CellMarkdown)
	backend.SetOutputs(0, []notebook.Output{{OutputType: notebook.OutputStream, Text: "hi"}})

	if err := engine.ClearOutputs(Selector{}, true, Options{}); err != nil {
		t.Fatalf("clear outputs: %v", err)
	}
	if len(backend.View(0).Outputs()) != 0 {
		t.Fatalf("expected outputs cleared on code cell")
	}
	if history := engine.Log.HistoryFor(idFor(1), 0); len(history) != 0 {
		t.Fatalf("expected the markdown cell left untouched, got %+v", history)
	}
}

func TestMovePreservesCellIdentity(t *testing.T) {
	// destIndex 2 lies past the removed slot (index 0), so it is adjusted
	// down by one: [a,b,c] -> [b,a,c], not [b,c,a].
	engine, backend := newTestEngine("a", "b", "c")
	idx := 0
	if err := engine.Move(Selector{Index: &idx}, 2, Options{}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if backend.View(1).Source() != "a" {
		t.Fatalf("expected 'a' to land at index 1, got %q", backend.View(1).Source())
	}
	if id, _ := backend.View(1).ID(); id != idFor(0) {
		t.Fatalf("expected moved cell to keep id %q, got %q", idFor(0), id)
	}
	if backend.View(0).Source() != "b" || backend.View(2).Source() != "c" {
		t.Fatalf("expected [b,a,c], got [%q,%q,%q]", backend.View(0).Source(), backend.View(1).Source(), backend.View(2).Source())
	}
}

func TestCopyCreatesFreshIDWithSameSource(t *testing.T) {
	engine, backend := newTestEngine("original")
	idx := 0
	newID, err := engine.Copy(Selector{Index: &idx}, 1, Options{})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if newID == idFor(0) {
		t.Fatalf("expected a fresh id distinct from the source cell")
	}
	if backend.View(1).Source() != "original" {
		t.Fatalf("expected copied source preserved")
	}
	if backend.Len() != 2 {
		t.Fatalf("expected 2 cells after copy")
	}
}

func TestBatchInsertIsAtomicAndOffsetsByPriorInserts(t *testing.T) {
	engine, backend := newTestEngine("base")
	zero := 0
	specs := []BatchInsertSpec{
		{Index: &zero, Source: "first"},
		{Index: &zero, Source: "second"},
	}
	ids, err := engine.BatchInsert(specs, Options{})
	if err != nil {
		t.Fatalf("batch insert: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if backend.Len() != 3 {
		t.Fatalf("expected 3 cells total, got %d", backend.Len())
	}
	if backend.View(0).Source() != "first" || backend.View(1).Source() != "second" {
		t.Fatalf("unexpected ordering: %q, %q", backend.View(0).Source(), backend.View(1).Source())
	}
}

func TestBatchUpdateAppliesAllOrNone(t *testing.T) {
	engine, backend := newTestEngine("a", "b")
	zero, one := 0, 1
	specs := []BatchUpdateSpec{
		{Sel: Selector{Index: &zero}, Source: "A"},
		{Sel: Selector{Index: &one}, Source: "B"},
	}
	if err := engine.BatchUpdate(specs, Options{}); err != nil {
		t.Fatalf("batch update: %v", err)
	}
	if backend.View(0).Source() != "A" || backend.View(1).Source() != "B" {
		t.Fatalf("unexpected sources after batch update")
	}
}

func TestRecoverReInsertsMostRecentlyDeletedSource(t *testing.T) {
	engine, backend := newTestEngine("keep")
	zero := 0
	engine.Backend.Transact(func() error {
		engine.Backend.InsertAt(1, NewCellData{ID: "doomed", Type: notebook.CellCode, Source: "to be deleted"})
		return nil
	})
	one := 1
	if _, err := engine.Delete(Selector{Index: &one}, Options{}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	newID, err := engine.Recover("doomed", &zero, Options{})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if newID == "" {
		t.Fatalf("expected a new id for the recovered cell")
	}
	if backend.View(0).Source() != "to be deleted" {
		t.Fatalf("expected recovered source at index 0, got %q", backend.View(0).Source())
	}
}

func TestRecoverUnknownCellIsNotFound(t *testing.T) {
	engine, _ := newTestEngine("a")
	_, err := engine.Recover("nonexistent", nil, Options{})
	if _, ok := err.(*notebookerr.NotFound); !ok {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestStrictLocksRejectsForeignLockWithoutForce(t *testing.T) {
	engine, _ := newTestEngine("a")
	engine.StrictLocks = true
	engine.Locks.Acquire(engine.Path, []string{idFor(0)}, "human", time.Minute)

	idx := 0
	err := engine.Update(Selector{Index: &idx}, "new", Options{ClientName: "agent", Force: false})
	if _, ok := err.(*notebookerr.LockedByOther); !ok {
		t.Fatalf("expected LockedByOther, got %v", err)
	}

	err = engine.Update(Selector{Index: &idx}, "new", Options{ClientName: "agent", Force: true})
	if err != nil {
		t.Fatalf("expected force to bypass the lock, got %v", err)
	}
}
