package formula

import (
	"errors"
	"fmt"
)

var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError reports a malformed transform or validation request.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidInput, e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Invalid builds an InvalidInputError for callers outside this package.
func Invalid(field, format string, args ...any) error {
	return invalid(field, format, args...)
}
