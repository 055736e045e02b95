// Package notebookerr defines the failure taxonomy shared by every
// component (§4.9/§7 of spec.md). Each kind is a distinct type so callers
// use errors.As instead of matching on message text; the out-of-scope
// dispatch layer is expected to map each kind to the "Error: <message>"
// envelope described in §7.
package notebookerr

import "fmt"

// ConnectionRequired: an operation needing a kernel or live document was
// called before connect_jupyter.
type ConnectionRequired struct{ Op string }

func (e *ConnectionRequired) Error() string {
	return fmt.Sprintf("%s: not connected to a notebook server", e.Op)
}

// NotFound: a path, session, cell id, or snapshot name did not resolve.
type NotFound struct{ What string }

func (e *NotFound) Error() string { return fmt.Sprintf("not found: %s", e.What) }

// Ambiguous: a cell id prefix matched multiple cells.
type Ambiguous struct {
	Query   string
	Indices []int
}

func (e *Ambiguous) Error() string {
	return fmt.Sprintf("ambiguous cell id prefix %q matches %d cells: %v", e.Query, len(e.Indices), e.Indices)
}

// OutOfRange: a numeric index lay outside [0, cell_count).
type OutOfRange struct {
	Index, Count int
}

func (e *OutOfRange) Error() string {
	return fmt.Sprintf("index %d out of range for %d cells", e.Index, e.Count)
}

// ConflictingArgs: both positional and id forms were supplied, or start>end.
type ConflictingArgs struct{ Detail string }

func (e *ConflictingArgs) Error() string { return fmt.Sprintf("conflicting arguments: %s", e.Detail) }

// HumanEditing: blocked by the focus arbiter unless force was set.
type HumanEditing struct{ User string }

func (e *HumanEditing) Error() string {
	return fmt.Sprintf("blocked: %s is currently editing this cell", e.User)
}

// LockedByOther: a write would overwrite a foreign lock under strict policy.
type LockedByOther struct {
	CellID, Owner string
}

func (e *LockedByOther) Error() string {
	return fmt.Sprintf("cell %s is locked by %s", e.CellID, e.Owner)
}

// KernelAbsent: execute was attempted against a notebook with no kernel.
type KernelAbsent struct{ Path string }

func (e *KernelAbsent) Error() string { return fmt.Sprintf("no active kernel for %s", e.Path) }

// SyncTimeout: 10s elapsed without a sync event (§4.3).
type SyncTimeout struct{ Path string }

func (e *SyncTimeout) Error() string { return fmt.Sprintf("timed out waiting for sync on %s", e.Path) }

// ExecutionTimeout: the kernel reply was not received within the timeout.
type ExecutionTimeout struct{ Path string }

func (e *ExecutionTimeout) Error() string {
	return fmt.Sprintf("execution timed out for %s", e.Path)
}

// IoError wraps a filesystem backend I/O failure.
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string { return fmt.Sprintf("io error on %s: %v", e.Path, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

// ParseError wraps a filesystem backend decode failure.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse error on %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// ToolUnavailable: the rename analyzer could not be located.
type ToolUnavailable struct{ Tool string }

func (e *ToolUnavailable) Error() string {
	return fmt.Sprintf("%s is not available; install a Python interpreter to enable rename", e.Tool)
}
