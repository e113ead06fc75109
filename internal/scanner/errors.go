package scanner

import "errors"

// ErrNotADirectory is returned when the scan root does not exist or is
// not a directory (spec.md §4.2 step 1).
var ErrNotADirectory = errors.New("scanner: root is not a directory")

// ErrCancelled is returned when the caller's context is cancelled
// before the worker pool joins. No tree is returned alongside it.
var ErrCancelled = errors.New("scanner: scan was cancelled")
