// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
)

var (
	ErrTypeMismatch = errors.New("type error")
	ErrWidth        = errors.New("width error")
	ErrRange        = errors.New("range error")
	ErrMap          = errors.New("map error")
	ErrFixedValue   = errors.New("fixed value error")
)

// ValidationError describes a rejected field assignment. Err is one of the
// sentinel errors above so callers can classify it with errors.Is.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: field %s value %v: %s", e.Err, e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(field string, value any, kind error, format string, args ...any) error {
	return &ValidationError{
		Field:  field,
		Value:  value,
		Reason: fmt.Sprintf(format, args...),
		Err:    kind,
	}
}
