package livedoc

import (
	"testing"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
)

func TestSessionDescriptorRoomIDPreservesColons(t *testing.T) {
	desc := SessionDescriptor{Format: "json", Type: "notebook", FileID: "notebooks/a.ipynb"}
	want := "json:notebook:notebooks/a.ipynb"
	if got := desc.RoomID(); got != want {
		t.Fatalf("RoomID() = %q, want %q", got, want)
	}
}

func TestWireCellToEntryDefaultsMissingTypeToCode(t *testing.T) {
	wc := WireCell{ID: "c1", Source: "x = 1"}
	entry := wireCellToEntry(wc)
	if entry.CellType() != notebook.CellCode {
		t.Fatalf("expected default type code, got %v", entry.CellType())
	}
	if entry.Source() != "x = 1" {
		t.Fatalf("unexpected source: %q", entry.Source())
	}
}

func TestWireCellToEntryDecodesOutputs(t *testing.T) {
	wc := WireCell{
		ID:     "c1",
		Type:   "code",
		Source: "1/0",
		Outputs: []map[string]any{
			{"output_type": "error", "ename": "ZeroDivisionError", "evalue": "division by zero", "traceback": []any{"line1", "line2"}},
		},
	}
	entry := wireCellToEntry(wc)
	outs := entry.Outputs()
	if len(outs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outs))
	}
	if outs[0].OutputType != notebook.OutputError {
		t.Fatalf("unexpected output type: %v", outs[0].OutputType)
	}
	if outs[0].ErrorName != "ZeroDivisionError" {
		t.Fatalf("unexpected ename: %q", outs[0].ErrorName)
	}
	if len(outs[0].ErrorTraceback) != 2 {
		t.Fatalf("unexpected traceback: %v", outs[0].ErrorTraceback)
	}
}

func TestDecodeOutputHandlesExecutionCount(t *testing.T) {
	out := decodeOutput(map[string]any{
		"output_type":     "execute_result",
		"execution_count": float64(7),
		"data":            map[string]any{"text/plain": "7"},
	})
	if out.ExecutionCount == nil || *out.ExecutionCount != 7 {
		t.Fatalf("expected execution count 7, got %v", out.ExecutionCount)
	}
	if out.Data["text/plain"] != "7" {
		t.Fatalf("unexpected data: %v", out.Data)
	}
}
