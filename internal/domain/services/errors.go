package services

import "errors"

var (
	// ErrNotFound covers missing rows and, deliberately, rows the caller
	// is not allowed to know exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized covers both failed authentication and operations
	// the authenticated caller may not perform.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotAcceptable means no representation satisfies the Accept header.
	ErrNotAcceptable = errors.New("not acceptable")
	// ErrNotReady means the requested artifact is still being produced.
	ErrNotReady = errors.New("not ready")
	// ErrBlobNotFound is returned by blob stores for missing objects.
	ErrBlobNotFound = errors.New("blob not found")
)

// ValidationError is a client error with a structured body.
type ValidationError struct {
	Title  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Title
	}
	return e.Title + ": " + e.Detail
}

func NewValidationError(title, detail string) *ValidationError {
	return &ValidationError{Title: title, Detail: detail}
}
