package mutate

import (
	"github.com/jupyter-collab/notebook-engine/internal/changelog"
	"github.com/jupyter-collab/notebook-engine/internal/kernel"
	"github.com/jupyter-collab/notebook-engine/internal/notebook"
)

// ApplyExecutionResult folds a kernel execution's outputs and execution
// count back into the target cell, inside a single transaction, and
// records an `execute` change entry (§4.10: "the cell's execution count and
// outputs are rewritten in a single transaction: any existing outputs are
// cleared and each frame is serialized into the collaborative outputs
// sequence"). Focus/lock checks apply the same as any other write (§4.8:
// "Applies to ... their execute-combining variants").
func (e *Engine) ApplyExecutionResult(sel Selector, res kernel.Result, opts Options) error {
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

		e.Backend.SetOutputs(idx, res.Outputs)
		e.Backend.SetExecutionCount(idx, res.ExecutionCount)

		_, err = e.Log.Record(changelog.Entry{
			Operation: changelog.OpExecute,
			CellID:    cellID,
			Index:     idx,
			Detail:    res.Status,
			Client:    opts.ClientName,
		})
		return err
	})
}

// ExecuteSource inserts source as a fresh cell (for execute_code /
// insert_and_execute) before the caller drives kernel.Session.Execute and
// folds the result back via ApplyExecutionResult.
func (e *Engine) ExecuteSource(index *int, source string, opts Options) (string, error) {
	return e.Insert("", index, "", source, notebook.CellCode, opts)
}
