package domain

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when an id has no stored version. It is a
// normal, expected outcome for reads against unknown ids and is
// distinguishable from backend failures.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("document %s not found", e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// ErrInvalidToken indicates a malformed or unparseable continuation token.
// Backends wrap it with detail; callers match with errors.Is.
var ErrInvalidToken = errors.New("invalid continuation token")

// ConflictError is returned when an optimistic version-fenced write loses a
// race: another writer claimed the same next version between the read and
// the write. Callers retry the whole operation.
type ConflictError struct {
	ID      string
	Version int
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("document %s version %d already written by a concurrent update", e.ID, e.Version)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c ConflictError
	return errors.As(err, &c)
}

// UnavailableError wraps an I/O failure against the underlying backend
// service. The store never retries internally; the caller owns retry policy.
type UnavailableError struct {
	Op  string
	Err error
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("store backend unavailable during %s: %v", e.Op, e.Err)
}

func (e UnavailableError) Unwrap() error { return e.Err }
