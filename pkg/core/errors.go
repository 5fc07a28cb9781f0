package core

import "errors"

// Common errors.
var (
	// ErrNotFound is returned by stores when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidReference is returned when a reference string cannot be parsed.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrReadOnly is returned by stores that refuse writes.
	ErrReadOnly = errors.New("store is in read-only mode")
)
