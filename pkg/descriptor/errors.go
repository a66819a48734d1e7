package descriptor

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks a payload that decoded but broke a structural rule.
	ErrMalformed = errors.New("malformed descriptor")
	// ErrDecode marks a payload that could not be parsed into the kind's shape.
	ErrDecode = errors.New("descriptor decode failure")
)

// FieldError names the field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("malformed descriptor: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is match ErrMalformed.
func (e *FieldError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}
