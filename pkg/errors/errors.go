package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrMissingProductID = errors.New("missing product id")
	ErrIndexWrite       = errors.New("index write failed")
	ErrIndexLocked      = errors.New("index is locked by another writer")
	ErrSnapshotOpen     = errors.New("snapshot open failed")
	ErrQuerySyntax      = errors.New("query syntax error")
	ErrPartialReindex   = errors.New("reindex completed with failures")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IndexWriteError reports a failed mutation of the index store. It matches
// both ErrIndexWrite and the underlying cause.
type IndexWriteError struct {
	Op  string
	Err error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("index write (%s): %v", e.Op, e.Err)
}

func (e *IndexWriteError) Unwrap() []error {
	return []error{ErrIndexWrite, e.Err}
}

// SnapshotOpenError reports that a committed view of the index could not be
// opened.
type SnapshotOpenError struct {
	Err error
}

func (e *SnapshotOpenError) Error() string {
	return fmt.Sprintf("opening snapshot: %v", e.Err)
}

func (e *SnapshotOpenError) Unwrap() []error {
	return []error{ErrSnapshotOpen, e.Err}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrQuerySyntax), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMissingProductID):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrIndexLocked):
		return http.StatusConflict
	case errors.Is(err, ErrSnapshotOpen), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
