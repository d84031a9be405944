package softdelete

import "errors"

var (
	// ErrNotFound means the record or tombstone is absent in the visibility mode
	// the operation looked in.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied means the actor lacks the elevated privilege.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInconsistentState means a tombstone or record cannot be processed:
	// a snapshot carrying bookkeeping fields, a key of the wrong kind, a row
	// with both or neither key slot populated.
	ErrInconsistentState = errors.New("inconsistent recycle bin state")

	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrInvalidKey        = errors.New("invalid entity key")
	ErrInvalidExpiry     = errors.New("invalid expiry")
)
