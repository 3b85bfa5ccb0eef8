// Package errors provides error types and handling for shelfsync operations.
package errors

import (
	"errors"
	"fmt"
)

// Error represents a sync operation error with context about the
// operation that failed. It wraps the underlying fault with the item id
// and destination path involved for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "download", "upload", "verify")
	Op string

	// ID is the item id the operation was running for (if applicable)
	ID string

	// Path is the destination or local path involved (if applicable)
	Path string

	// Err is the underlying error from a collaborator or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.ID != "" && e.Path != "" {
		return fmt.Sprintf("sync.%s item %s path %s: %v", e.Op, e.ID, e.Path, e.Err)
	}
	if e.ID != "" {
		return fmt.Sprintf("sync.%s item %s: %v", e.Op, e.ID, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("sync.%s path %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("sync.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithID adds item id context to an existing error.
func (e *Error) WithID(id string) *Error {
	e.ID = id
	return e
}

// WithPath adds path context to an existing error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewItemError creates a new Error with item id context.
func NewItemError(op, id string, err error) *Error {
	return &Error{
		Op:  op,
		ID:  id,
		Err: err,
	}
}

// Sentinel errors for common sync operation failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrIntegrityMismatch indicates a downloaded file failed its size or
	// emptiness check; the transfer is corrupted and must not be retried
	ErrIntegrityMismatch = errors.New("sync: integrity mismatch")

	// ErrVerifyFailed indicates the uploaded object did not match the
	// staged file on re-query
	ErrVerifyFailed = errors.New("sync: upload verification failed")

	// ErrConflictExhausted indicates conflict probing ran out of
	// candidate version names
	ErrConflictExhausted = errors.New("sync: conflict probe limit exhausted")

	// ErrNotFound indicates the requested entry does not exist
	ErrNotFound = errors.New("sync: entry not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("sync: invalid input")

	// ErrConflict indicates a concurrent writer won a destination path
	ErrConflict = errors.New("sync: destination write conflict")
)

// IsIntegrityMismatch checks if an error indicates a corrupted transfer.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsIntegrityMismatch(err error) bool {
	return errors.Is(err, ErrIntegrityMismatch)
}

// IsNotFound checks if an error indicates a missing entry.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error indicates a destination write conflict.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
