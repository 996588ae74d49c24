package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist in the caller's
	// partition. A record owned by another user reports the same error.
	ErrNotFound = errors.New("record not found")

	// ErrEmailTaken is returned when registering an email that already has
	// an identity.
	ErrEmailTaken = errors.New("email already registered")
)
