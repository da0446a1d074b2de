// Package storage writes rendered artifacts below an output root.
package storage

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrStorage matches every StorageError via errors.Is.
	ErrStorage = errors.New("storage failed")

	// ErrUnsafePath is returned for paths that leave the output root.
	ErrUnsafePath = errors.New("path escapes the output root")

	// ErrDuplicatePath is returned when one batch writes a path twice.
	ErrDuplicatePath = errors.New("path written more than once")

	// ErrUnsafeRoot is returned when cleaning a root that must not be removed.
	ErrUnsafeRoot = errors.New("refusing to remove output root")
)

// StorageError wraps errors with the operation and path that failed.
type StorageError struct {
	Op   string // Operation that failed (e.g., "write", "rename", "clean")
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes every StorageError match ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// NewStorageError creates a new StorageError.
func NewStorageError(op, path string, err error) *StorageError {
	return &StorageError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}
