package types

import "errors"

// Sentinel errors returned across the store. Callers match them with errors.Is.
var (
	// ErrNotFound indicates an unknown logical id, version id, or cache id.
	ErrNotFound = errors.New("chronicle: record not found")

	// ErrIntegrityViolation indicates a relation referencing a non-existent
	// endpoint version, or one whose physical time postdates the relation's.
	// It rejects the whole commit batch.
	ErrIntegrityViolation = errors.New("chronicle: integrity violation")

	// ErrInvalidQuery indicates malformed search or traversal parameters.
	ErrInvalidQuery = errors.New("chronicle: invalid query")

	// ErrInvalidDecision indicates a malformed decision batch, detected
	// before any write occurs.
	ErrInvalidDecision = errors.New("chronicle: invalid decision")

	// ErrStorage wraps persistence-layer failures. A storage failure inside
	// a commit aborts the entire batch.
	ErrStorage = errors.New("chronicle: storage failure")

	// ErrClosed is returned by operations on a closed client or store.
	ErrClosed = errors.New("chronicle: store is closed")
)
