package rides

import "errors"

// Failure taxonomy for ride and participation operations. Handlers map these
// onto HTTP statuses; everything else bubbles up as an internal error.
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidState     = errors.New("invalid state")
	ErrConflict         = errors.New("conflict")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrValidation       = errors.New("invalid input")
)
