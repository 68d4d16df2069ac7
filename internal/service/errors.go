package service

import (
	"errors"
	"fmt"

	"dealfx/internal/rate"
)

// Stable machine-readable failure codes surfaced to callers. Raw internal
// error text never leaves the process boundary.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeRateUnavailable = "RATE_UNAVAILABLE"
	CodeStorage         = "STORAGE_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
)

// ValidationError reports a malformed or incomplete event payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// StorageError wraps a failed store round-trip. The mutation either committed
// fully or not at all; partial writes cannot occur.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ErrorCode classifies an error from the conversion pipeline into one of the
// stable codes above.
func ErrorCode(err error) string {
	var validation *ValidationError
	var storage *StorageError
	switch {
	case errors.As(err, &validation):
		return CodeValidation
	case errors.Is(err, rate.ErrUnavailable):
		return CodeRateUnavailable
	case errors.As(err, &storage):
		return CodeStorage
	default:
		return CodeInternal
	}
}
