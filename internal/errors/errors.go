package errors

import (
	"errors"
	"fmt"
)

// Errors shared by the stores, bootstrap and the HTTP layer
var (
	// Backend errors
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrCorruptRecord      = errors.New("corrupt record")

	// Request errors
	ErrMalformedBody = errors.New("malformed request body")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Join combines errors so that errors.Is matches any of them
func Join(errs ...error) error {
	return errors.Join(errs...)
}
