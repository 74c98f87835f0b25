package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrNoTargets   = errors.New("nomination needs at least one target user")
	ErrPersistence = errors.New("persistence failure")
)

// PersistenceError is returned when a snapshot could not be written. The
// in-memory state has already been rolled back when callers see it.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist nominations: %v", e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
