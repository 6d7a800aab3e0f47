package services

import "errors"

// The four outcome kinds callers distinguish between. Handlers map these to
// HTTP statuses with errors.Is; anything that matches none of them is an
// unexpected storage failure.
var (
	// ErrValidation wraps every malformed-input failure: missing required
	// fields, an empty update patch, or an image-count overflow.
	ErrValidation = errors.New("validation failed")

	// ErrListingNotFound covers both a listing that does not exist and a
	// listing owned by another user. The two cases are deliberately
	// indistinguishable.
	ErrListingNotFound = errors.New("listing not found")

	// ErrInvalidCredentials is returned on any signin failure, without
	// revealing whether the username exists.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUsernameTaken is returned when signup hits the store's unique
	// username constraint.
	ErrUsernameTaken = errors.New("username already taken")
)
