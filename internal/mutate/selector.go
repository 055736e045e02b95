package mutate

import (
	"github.com/jupyter-collab/notebook-engine/internal/notebook"
	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

// Selector identifies a target cell either by index or by id prefix;
// index and id are mutually exclusive (§4.9).
type Selector struct {
	Index  *int
	CellID string
}

// Resolve turns the selector into a concrete index against ids.
func (s Selector) Resolve(ids []string) (int, error) {
	if s.Index != nil && s.CellID != "" {
		return 0, &notebookerr.ConflictingArgs{Detail: "both index and cell_id supplied"}
	}
	if s.CellID != "" {
		return notebook.Resolve(s.CellID, ids)
	}
	if s.Index != nil {
		return *s.Index, nil
	}
	return 0, &notebookerr.ConflictingArgs{Detail: "neither index nor cell_id supplied"}
}

// validateBounds checks idx against [0, count), used once an existing cell
// must be addressed (update/delete/move-source/etc).
func validateBounds(idx, count int) error {
	if idx < 0 || idx >= count {
		return &notebookerr.OutOfRange{Index: idx, Count: count}
	}
	return nil
}

// resolveInsertIndex implements the insert position rule of §4.9/§8: -1 or
// absent means append; 0 prepends; count appends; count+1 is OutOfRange.
func resolveInsertIndex(index *int, count int) (int, error) {
	if index == nil {
		return count, nil
	}
	i := *index
	if i == -1 {
		return count, nil
	}
	if i < 0 || i > count {
		return 0, &notebookerr.OutOfRange{Index: i, Count: count}
	}
	return i, nil
}

// cellIDAt is a small helper used when an id is needed purely for
// lock/focus checks (the view's ID() reader, or empty if unset).
func cellIDAt(b Backend, i int) string {
	id, _ := b.View(i).ID()
	return id
}
