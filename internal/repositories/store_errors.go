package repositories

import (
	"errors"
	"fmt"
)

// StoreErrorKind classifies a persistence failure independent of the backend.
type StoreErrorKind int

const (
	// StoreErrorUnknown is an unclassified failure.
	StoreErrorUnknown StoreErrorKind = iota
	// StoreErrorNotFound means the record does not exist.
	StoreErrorNotFound
	// StoreErrorConflict means a uniqueness or version check failed.
	StoreErrorConflict
	// StoreErrorUnavailable means the backend could not be reached.
	StoreErrorUnavailable
)

// StoreError implements RepositoryError for the memory and SQL stores.
type StoreError struct {
	Op   string
	Kind StoreErrorKind
	Err  error
}

var _ RepositoryError = (*StoreError)(nil)

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing record.
func (e *StoreError) IsNotFound() bool { return e != nil && e.Kind == StoreErrorNotFound }

// IsConflict reports whether the error represents a conflicting write.
func (e *StoreError) IsConflict() bool { return e != nil && e.Kind == StoreErrorConflict }

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Kind == StoreErrorUnavailable }

// NotFound builds a not-found StoreError.
func NotFound(op string, format string, args ...any) *StoreError {
	return &StoreError{Op: op, Kind: StoreErrorNotFound, Err: fmt.Errorf(format, args...)}
}

// Conflict builds a conflict StoreError.
func Conflict(op string, format string, args ...any) *StoreError {
	return &StoreError{Op: op, Kind: StoreErrorConflict, Err: fmt.Errorf(format, args...)}
}

// Unavailable wraps err as a transient backend failure.
func Unavailable(op string, err error) *StoreError {
	return &StoreError{Op: op, Kind: StoreErrorUnavailable, Err: err}
}

// IsNotFound reports whether err carries a RepositoryError classified as not found.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
