package domain

import "errors"

var (
	// ErrValidation marks input that fails domain validation.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup that matched no record in either the live
	// or the archival table.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an operation rejected because of the record's
	// current state.
	ErrConflict = errors.New("conflict")

	// ErrNoUsableProvider is returned when provider selection cannot find
	// an active provider for the requested notification type.
	ErrNoUsableProvider = errors.New("no usable provider")
)
