package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatus occurs when an entity is in the wrong lifecycle state for an operation.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrSourceFileMissing occurs when a retained import file is no longer readable.
	ErrSourceFileMissing = errors.New("source file missing")
)
