package repository

import "errors"

// Invariant violations surface as one of these sentinels so the HTTP layer
// can map each to its status code without string matching. Wrap with
// fmt.Errorf("...: %w", err) when adding context.
var (
	ErrRoleNotFound   = errors.New("role not found")
	ErrTableNotFound  = errors.New("table not found")
	ErrSeatTaken      = errors.New("seat taken")
	ErrSeatOutOfRange = errors.New("seat out of range")
	ErrMissingFields  = errors.New("missing fields")
)
