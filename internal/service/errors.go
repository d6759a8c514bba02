package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized covers missing, invalid or expired credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned for absent records and, deliberately, for
	// records owned by someone else.
	ErrNotFound = errors.New("not found")
)

// ValidationError marks malformed client input. Its message is safe to
// surface verbatim to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a client-input validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
