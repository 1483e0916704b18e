package ledger

import "errors"

var (
	// ErrInvalidTransition is returned when a batch status update violates
	// pending → processing → {completed | failed}.
	ErrInvalidTransition = errors.New("invalid batch status transition")

	// ErrBatchNotFound is returned for unknown batch ids.
	ErrBatchNotFound = errors.New("batch run not found")

	// ErrInvalidResourceType is returned when recording a change for an unknown resource type.
	ErrInvalidResourceType = errors.New("invalid resource type")

	// ErrInvalidChangeType is returned when recording an unknown change type.
	ErrInvalidChangeType = errors.New("invalid change type")
)
