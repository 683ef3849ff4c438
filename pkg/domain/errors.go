package domain

import "errors"

var (
	// ErrNoMatch is returned by strict single-result resolution when the
	// candidate sequence is empty.
	ErrNoMatch = errors.New("sequence contains no matching document")

	// ErrInvalidIdentifier is returned when an identifier is nil or not comparable.
	ErrInvalidIdentifier = errors.New("identifier must be a non-nil comparable value")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrMissingDocumentID is returned when an entity cannot be addressed by id.
	ErrMissingDocumentID = errors.New("entity does not expose a document id")
)
