package repository

import "errors"

// Shared sentinel errors for repositories.
// Handlers map these to HTTP status codes.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
	ErrNoSeats       = errors.New("no seats available")
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderExpired  = errors.New("order expired")
	ErrAlreadyPaid   = errors.New("order already paid")
	ErrLibraryClosed = errors.New("library not active")
	ErrEmailTaken    = errors.New("email already registered")
)
