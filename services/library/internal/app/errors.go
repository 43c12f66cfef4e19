package app

import "errors"

var (
	// ErrBookNotFound is returned when no book has the requested id.
	// Malformed ids are reported the same way.
	ErrBookNotFound = errors.New("book not found")

	// ErrInvalidCredentials is returned for an unknown user and for a wrong password alike.
	ErrInvalidCredentials = errors.New("Incorrect username or password")
)
