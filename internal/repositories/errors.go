package repositories

import "errors"

var (
	// ErrNotFound is returned when no record matches the query filter.
	// An owner-scoped lookup returns it both for absent records and for
	// records owned by another user.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when an insert violates a unique
	// constraint, e.g. an already taken username.
	ErrDuplicateKey = errors.New("duplicate key")
)
