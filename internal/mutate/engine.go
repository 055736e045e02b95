package mutate

import (
	"sort"

	"github.com/jupyter-collab/notebook-engine/internal/changelog"
	"github.com/jupyter-collab/notebook-engine/internal/locks"
	"github.com/jupyter-collab/notebook-engine/internal/notebook"
	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
	"github.com/jupyter-collab/notebook-engine/internal/obslog"
)

// Engine orchestrates the mutation operations of §4.9 over a Backend,
// consulting the lock table and focus arbiter and recording every
// successful change to the change log, in the order: resolve identity ->
// validate bounds -> consult locks -> consult focus -> apply -> record.
type Engine struct {
	Backend Backend
	Log     changelog.Log
	Locks   locks.Table
	Path    string

	// StrictLocks, if true, turns a foreign lock into a LockedByOther
	// error instead of a warn-and-proceed (§7: "default policy is to warn
	// and proceed ... if a caller opts into strict mode").
	StrictLocks bool
}

// Options carries the per-call attribution and override flags common to
// every mutation (§4.9, §6).
type Options struct {
	ClientName string
	Force      bool
}

func (e *Engine) checkLockAndFocus(cellID string, force bool) error {
	if e.Locks != nil {
		if entry, locked := e.Locks.Check(e.Path, cellID, locks.DefaultOwner); locked {
			if e.StrictLocks && !force {
				return &notebookerr.LockedByOther{CellID: cellID, Owner: entry.Owner}
			}
			obslog.Info("mutate: proceeding past foreign lock on cell %s (owner=%s)", notebook.TruncatedID(cellID), entry.Owner)
		}
	}
	if arb := e.Backend.FocusArbiter(); arb != nil {
		if err := arb.Check(cellID, force); err != nil {
			return err
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

// Insert implements §4.9 Insert.
func (e *Engine) Insert(sourceCellID string, index *int, cellID, source string, cellType notebook.CellType, opts Options) (string, error) {
	if cellType == "" {
		cellType = notebook.CellCode
	}

	var newID string
	err := e.Backend.Transact(func() error {
		count := e.Backend.Len()
		insertAt := count
		var err error
		switch {
		case sourceCellID != "":
			// insert_cell(cell_id=...) means "insert after that cell"
			after, rerr := notebook.Resolve(sourceCellID, e.Backend.IDs())
			if rerr != nil {
				return rerr
			}
			insertAt = after + 1
		default:
			insertAt, err = resolveInsertIndex(index, count)
			if err != nil {
				return err
			}
		}

		data := NewCellData{ID: cellID, Type: cellType, Source: source, Metadata: map[string]any{}}
		if cellType == notebook.CellCode {
			data.Outputs = []notebook.Output{}
		}
		newID = e.Backend.InsertAt(insertAt, data)

		_, err = e.Log.Record(changelog.Entry{
			Operation: changelog.OpInsert,
			CellID:    newID,
			Index:     insertAt,
			NewSource: strPtr(source),
			Client:    opts.ClientName,
		})
		return err
	})
	return newID, err
}

// Update implements §4.9 Update.
func (e *Engine) Update(sel Selector, source string, opts Options) error {
	return e.Backend.Transact(func() error {
		idx, err := sel.Resolve(e.Backend.IDs())
		if err != nil {
			return err
		}
		if err := validateBounds(idx, e.Backend.Len()); err != nil {
			return err
		}

		cellID := cellIDAt(e.Backend, idx)
		if err := e.checkLockAndFocus(cellID, opts.Force); err != nil {
			return err
		}

		oldSource := e.Backend.View(idx).Source()
		e.Backend.SetSource(idx, source)

		_, err = e.Log.Record(changelog.Entry{
			Operation: changelog.OpUpdate,
			CellID:    cellID,
			Index:     idx,
			OldSource: strPtr(oldSource),
			NewSource: strPtr(source),
			Client:    opts.ClientName,
		})
		return err
	})
}

// Delete implements §4.9 Delete for a single cell.
func (e *Engine) Delete(sel Selector, opts Options) (notebook.Cell, error) {
	var deleted notebook.Cell
	err := e.Backend.Transact(func() error {
		idx, err := sel.Resolve(e.Backend.IDs())
		if err != nil {
			return err
		}
		if err := validateBounds(idx, e.Backend.Len()); err != nil {
			return err
		}

		cellID := cellIDAt(e.Backend, idx)
		if err := e.checkLockAndFocus(cellID, opts.Force); err != nil {
			return err
		}

		deleted = e.Backend.DeleteAt(idx)

		_, err = e.Log.Record(changelog.Entry{
			Operation: changelog.OpDelete,
			CellID:    deleted.ID,
			Index:     idx,
			OldSource: strPtr(deleted.Source),
			Client:    opts.ClientName,
		})
		return err
	})
	return deleted, err
}

// DeleteCells implements §4.9 delete_cells: a contiguous range, or an
// explicit id set. start==end deletes exactly one cell (§8 Boundaries).
func (e *Engine) DeleteCells(startIndex, endIndex *int, cellIDs []string, opts Options) ([]notebook.Cell, error) {
	var deleted []notebook.Cell
	err := e.Backend.Transact(func() error {
		var indices []int
		switch {
		case len(cellIDs) > 0:
			idxs, err := notebook.ResolveMany(cellIDs, e.Backend.IDs())
			if err != nil {
				return err
			}
			indices = idxs
		case startIndex != nil && endIndex != nil:
			count := e.Backend.Len()
			start, end := *startIndex, *endIndex
			if start > end {
				return &notebookerr.ConflictingArgs{Detail: "start > end"}
			}
			if end >= count {
				return &notebookerr.OutOfRange{Index: end, Count: count}
			}
			for i := start; i <= end; i++ {
				indices = append(indices, i)
			}
		default:
			return &notebookerr.ConflictingArgs{Detail: "must supply either cell_ids or start_index/end_index"}
		}

		// delete from highest index to lowest so earlier indices stay valid
		sort.Sort(sort.Reverse(sort.IntSlice(indices)))
		for _, idx := range indices {
			if err := validateBounds(idx, e.Backend.Len()); err != nil {
				return err
			}
			cellID := cellIDAt(e.Backend, idx)
			if err := e.checkLockAndFocus(cellID, opts.Force); err != nil {
				return err
			}
			cell := e.Backend.DeleteAt(idx)
			deleted = append(deleted, cell)
			if _, err := e.Log.Record(changelog.Entry{
				Operation: changelog.OpDelete,
				CellID:    cell.ID,
				Index:     idx,
				OldSource: strPtr(cell.Source),
				Client:    opts.ClientName,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return deleted, err
}

// ChangeType implements §4.9 Change type.
func (e *Engine) ChangeType(sel Selector, newType notebook.CellType, opts Options) error {
	return e.Backend.Transact(func() error {
		idx, err := sel.Resolve(e.Backend.IDs())
		if err != nil {
			return err
		}
		if err := validateBounds(idx, e.Backend.Len()); err != nil {
			return err
		}

		cellID := cellIDAt(e.Backend, idx)
		if err := e.checkLockAndFocus(cellID, opts.Force); err != nil {
			return err
		}

		e.Backend.SetCellType(idx, newType)
		if newType == notebook.CellCode {
			if e.Backend.View(idx).Outputs() == nil {
				e.Backend.SetOutputs(idx, []notebook.Output{})
			}
			e.Backend.SetExecutionCount(idx, nil)
		}

		_, err = e.Log.Record(changelog.Entry{
			Operation: changelog.OpChangeType,
			CellID:    cellID,
			Index:     idx,
			Detail:    string(newType),
			Client:    opts.ClientName,
		})
		return err
	})
}

// ClearOutputs implements §4.9 Clear outputs, for one cell (sel.CellID or
// sel.Index set) or every code cell (all=true).
func (e *Engine) ClearOutputs(sel Selector, all bool, opts Options) error {
	return e.Backend.Transact(func() error {
		var indices []int
		if all {
			for i := 0; i < e.Backend.Len(); i++ {
				if e.Backend.View(i).CellType() == notebook.CellCode {
					indices = append(indices, i)
				}
			}
		} else {
			idx, err := sel.Resolve(e.Backend.IDs())
			if err != nil {
				return err
			}
			if err := validateBounds(idx, e.Backend.Len()); err != nil {
				return err
			}
			indices = []int{idx}
		}

		for _, idx := range indices {
			cellID := cellIDAt(e.Backend, idx)
			if err := e.checkLockAndFocus(cellID, opts.Force); err != nil {
				return err
			}
			e.Backend.SetOutputs(idx, []notebook.Output{})
			e.Backend.SetExecutionCount(idx, nil)
			if _, err := e.Log.Record(changelog.Entry{
				Operation: changelog.OpClearOutputs,
				CellID:    cellID,
				Index:     idx,
				Client:    opts.ClientName,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Move implements §4.9 Move within the same document: same-document move
// adjusts the destination index when it lies past the removed range, and
// preserves the cell's id.
func (e *Engine) Move(sel Selector, destIndex int, opts Options) error {
	return e.Backend.Transact(func() error {
		idx, err := sel.Resolve(e.Backend.IDs())
		if err != nil {
			return err
		}
		if err := validateBounds(idx, e.Backend.Len()); err != nil {
			return err
		}

		cellID := cellIDAt(e.Backend, idx)
		if err := e.checkLockAndFocus(cellID, opts.Force); err != nil {
			return err
		}

		e.Backend.Move(idx, destIndex)

		_, err = e.Log.Record(changelog.Entry{
			Operation: changelog.OpMove,
			CellID:    cellID,
			Index:     destIndex,
			Client:    opts.ClientName,
		})
		return err
	})
}

// Copy implements §4.9 Copy: creates a new cell (fresh id, empty outputs
// for code) at destIndex within the same backend.
func (e *Engine) Copy(sel Selector, destIndex int, opts Options) (string, error) {
	var newID string
	err := e.Backend.Transact(func() error {
		idx, err := sel.Resolve(e.Backend.IDs())
		if err != nil {
			return err
		}
		if err := validateBounds(idx, e.Backend.Len()); err != nil {
			return err
		}

		src := e.Backend.View(idx)
		data := NewCellData{
			Type:     src.CellType(),
			Source:   src.Source(),
			Metadata: map[string]any{},
		}
		if src.CellType() == notebook.CellCode {
			data.Outputs = []notebook.Output{}
		}
		newID = e.Backend.InsertAt(destIndex, data)

		_, err = e.Log.Record(changelog.Entry{
			Operation: changelog.OpCopy,
			CellID:    newID,
			Index:     destIndex,
			NewSource: strPtr(src.Source()),
			Client:    opts.ClientName,
		})
		return err
	})
	return newID, err
}

// BatchInsertSpec is one element of a batch insert request.
type BatchInsertSpec struct {
	Index  *int
	CellID string
	Type   notebook.CellType
	Source string
}

// BatchInsert implements §4.9 Batch insert: atomic over the cell sequence,
// with later entries' positional arguments offset by the number of prior
// inserts at or before the same index.
func (e *Engine) BatchInsert(specs []BatchInsertSpec, opts Options) ([]string, error) {
	ids := make([]string, len(specs))
	err := e.Backend.Transact(func() error {
		for i, spec := range specs {
			count := e.Backend.Len()
			insertAt, err := resolveInsertIndex(spec.Index, count)
			if err != nil {
				return err
			}
			if spec.Index != nil {
				insertAt += offsetForPriorInserts(specs[:i], *spec.Index)
			}

			cellType := spec.Type
			if cellType == "" {
				cellType = notebook.CellCode
			}
			data := NewCellData{ID: spec.CellID, Type: cellType, Source: spec.Source, Metadata: map[string]any{}}
			if cellType == notebook.CellCode {
				data.Outputs = []notebook.Output{}
			}
			id := e.Backend.InsertAt(insertAt, data)
			ids[i] = id

			if _, err := e.Log.Record(changelog.Entry{
				Operation: changelog.OpInsert,
				CellID:    id,
				Index:     insertAt,
				NewSource: strPtr(spec.Source),
				Client:    opts.ClientName,
				Detail:    "batch",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return ids, err
}

// offsetForPriorInserts counts how many earlier specs in the same batch
// will land at or before target once resolved, so a later entry's
// positional index accounts for cells the batch itself has already
// inserted ahead of it (§4.9 Batch insert).
func offsetForPriorInserts(prior []BatchInsertSpec, target int) int {
	n := 0
	for _, s := range prior {
		if s.Index != nil && *s.Index <= target {
			n++
		}
	}
	return n
}

// BatchUpdateSpec is one element of a batch update request.
type BatchUpdateSpec struct {
	Sel    Selector
	Source string
}

// BatchUpdate implements §4.9 Batch update: atomic over the cell sequence.
func (e *Engine) BatchUpdate(specs []BatchUpdateSpec, opts Options) error {
	return e.Backend.Transact(func() error {
		// Resolve and check every target before changing any cell, so a
		// failing entry leaves the whole batch unapplied.
		indices := make([]int, len(specs))
		for i, spec := range specs {
			idx, err := spec.Sel.Resolve(e.Backend.IDs())
			if err != nil {
				return err
			}
			if err := validateBounds(idx, e.Backend.Len()); err != nil {
				return err
			}
			if err := e.checkLockAndFocus(cellIDAt(e.Backend, idx), opts.Force); err != nil {
				return err
			}
			indices[i] = idx
		}
		for i, spec := range specs {
			idx := indices[i]
			cellID := cellIDAt(e.Backend, idx)
			oldSource := e.Backend.View(idx).Source()
			e.Backend.SetSource(idx, spec.Source)
			if _, err := e.Log.Record(changelog.Entry{
				Operation: changelog.OpUpdate,
				CellID:    cellID,
				Index:     idx,
				OldSource: strPtr(oldSource),
				NewSource: strPtr(spec.Source),
				Client:    opts.ClientName,
				Detail:    "batch",
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recover implements §4.9 Recover: re-inserts a cell with the most
// recently deleted source for the given id prefix.
func (e *Engine) Recover(cellQuery string, index *int, opts Options) (string, error) {
	source, ok := e.Log.LastDeletedSource(cellQuery)
	if !ok {
		return "", &notebookerr.NotFound{What: "deleted cell " + cellQuery}
	}

	var newID string
	err := e.Backend.Transact(func() error {
		count := e.Backend.Len()
		insertAt, err := resolveInsertIndex(index, count)
		if err != nil {
			return err
		}

		data := NewCellData{Type: notebook.CellCode, Source: source, Metadata: map[string]any{}, Outputs: []notebook.Output{}}
		newID = e.Backend.InsertAt(insertAt, data)

		_, err = e.Log.Record(changelog.Entry{
			Operation: changelog.OpRestore,
			CellID:    newID,
			Index:     insertAt,
			NewSource: strPtr(source),
			Client:    opts.ClientName,
		})
		return err
	})
	return newID, err
}
