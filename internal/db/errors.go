package db

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a notification, template, or preference row
// does not exist. Callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// ValidationError marks a caller mistake: a malformed request, an ownership
// mismatch, or a constraint violation. It is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
