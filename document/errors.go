package document

import "errors"

// Sentinel errors shared by every layer that mutates a document.
var (
	// ErrInvalidField indicates a field that references a missing page or
	// carries an unknown type, assignee or malformed geometry.
	ErrInvalidField = errors.New("invalid field")

	// ErrDocumentLocked indicates a mutation attempted outside the status
	// that permits it.
	ErrDocumentLocked = errors.New("document locked")

	// ErrUnauthorized indicates a party writing a field it does not own.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the requested document or field does not exist.
	ErrNotFound = errors.New("not found")
)
