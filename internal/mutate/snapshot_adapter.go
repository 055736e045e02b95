package mutate

import (
	"encoding/json"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
	"github.com/jupyter-collab/notebook-engine/internal/snapshot"
)

// SnapshotTarget adapts a Backend to snapshot.Target, so Restore can drive
// either backend through the same remove-all/reinsert-all sequence (§4.7).
type SnapshotTarget struct {
	Backend Backend
}

func (t SnapshotTarget) Len() int { return t.Backend.Len() }

func (t SnapshotTarget) RemoveAt(i int) { t.Backend.DeleteAt(i) }

func (t SnapshotTarget) InsertRestored(i int, c snapshot.Cell) {
	data := NewCellData{
		ID:       c.ID,
		Type:     c.Type,
		Source:   c.Source,
		Metadata: c.Metadata,
	}
	// A JSON round trip deep-copies the metadata so the restored cell never
	// shares maps or slices with the snapshot.
	if raw, err := json.Marshal(c.Metadata); err == nil {
		var md map[string]any
		if json.Unmarshal(raw, &md) == nil {
			data.Metadata = md
		}
	}
	if c.Type == notebook.CellCode {
		data.Outputs = []notebook.Output{}
	}
	t.Backend.InsertAt(i, data)
}

// Views materializes every cell in the backend, in order, for snapshot
// capture or diffing against a prior snapshot (§4.7).
func Views(b Backend) []notebook.View {
	views := make([]notebook.View, b.Len())
	for i := 0; i < b.Len(); i++ {
		views[i] = b.View(i)
	}
	return views
}

var _ snapshot.Target = SnapshotTarget{}
