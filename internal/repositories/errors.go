package repositories

import (
	"errors"
	"fmt"
)

// ErrGrantNotFound is returned when a grant ID does not exist
var ErrGrantNotFound = errors.New("grant not found")

// StorageError wraps a failure of the underlying store
// Callers use errors.As to tell infrastructure faults from domain errors.
type StorageError struct {
	Op  string // Operation that failed (e.g., "create grant")
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err with the failed operation name
func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is or wraps a StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
