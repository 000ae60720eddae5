package loader

import "fmt"

// FileAccessError reports a missing or unreadable input file. It is fatal
// for the dataset being loaded.
type FileAccessError struct {
	Dataset string
	Path    string
	Err     error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("dataset %q: cannot read %s: %v", e.Dataset, e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// RowValidationError reports a per-row type-cast or missing-column failure.
// The row is skipped and counted; the load continues.
type RowValidationError struct {
	File   string
	Line   int
	Column string
	Reason string
}

func (e *RowValidationError) Error() string {
	return fmt.Sprintf("%s line %d: column %q: %s", e.File, e.Line, e.Column, e.Reason)
}

// UpsertConflictError reports a natural-key collision under the "reject"
// conflict policy. It aborts the dataset load.
type UpsertConflictError struct {
	Dataset string
	File    string
	Line    int
	Key     string
}

func (e *UpsertConflictError) Error() string {
	return fmt.Sprintf("dataset %q: %s line %d: natural key (%s) already staged and conflict policy is reject",
		e.Dataset, e.File, e.Line, e.Key)
}
