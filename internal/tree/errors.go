package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both missing nodes and nodes owned by someone else.
	ErrNotFound = errors.New("node not found")
	// ErrInvalidReference reports a child id that should resolve but does not.
	// It always means a stored ordering is inconsistent.
	ErrInvalidReference = errors.New("invalid child reference")
	// ErrNoCaller is returned when an operation runs without an owner.
	ErrNoCaller = errors.New("caller has no owner id")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
