package documents

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates the record changed since it was read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrTerminalState indicates a transition out of a terminal state.
	ErrTerminalState = errors.New("document already in terminal state")

	// ErrInvalidInput indicates a malformed query (not an upload rejection).
	ErrInvalidInput = errors.New("invalid input")
)

// Validation codes surfaced to callers.
const (
	CodeUnsupportedMime = "unsupported_mime"
	CodeSizeExceeded    = "size_exceeded"
	CodeMissingFile     = "missing_file"
)

var (
	ErrUnsupportedMime = &ValidationError{Code: CodeUnsupportedMime}
	ErrSizeExceeded    = &ValidationError{Code: CodeSizeExceeded}
	ErrMissingFile     = &ValidationError{Code: CodeMissingFile}
)

// ValidationError rejects an upload before any side effect took place.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches any ValidationError with the same code.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

func newValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// StorageWriteError wraps a failure to persist the raw blob. No record exists.
type StorageWriteError struct {
	Key string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("store blob %s: %v", e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// MetadataPersistError wraps a failure to create the record after the blob was written.
// CleanupErr is set when removing the orphaned blob also failed.
type MetadataPersistError struct {
	Err        error
	CleanupErr error
}

func (e *MetadataPersistError) Error() string {
	if e.CleanupErr != nil {
		return fmt.Sprintf("persist metadata: %v (blob cleanup: %v)", e.Err, e.CleanupErr)
	}
	return fmt.Sprintf("persist metadata: %v", e.Err)
}

func (e *MetadataPersistError) Unwrap() error { return e.Err }
