package auth

import (
	"github.com/pkg/errors"
)

// The sentinel messages are what callers may show to users. Causes of
// ErrUnexpected are reachable through errors.Unwrap for logging only.
var (
	ErrInvalidInput         = errors.New("invalid credentials")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrIncorrectCredentials = errors.New("incorrect credentials")
	ErrMissingToken         = errors.New("missing auth token")
	ErrInvalidToken         = errors.New("invalid auth token")
	ErrUnexpected           = errors.New("unexpected error")
)

// ErrorKind is the externally visible class of a failure.
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindValidation
	KindConflict
	KindAuthFailure
	KindMissingInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuthFailure:
		return "auth_failure"
	case KindMissingInput:
		return "missing_input"
	default:
		return "unexpected"
	}
}

// Kind classifies err. Anything not produced by this package is unexpected.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrUserAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrIncorrectCredentials), errors.Is(err, ErrInvalidToken):
		return KindAuthFailure
	case errors.Is(err, ErrMissingToken):
		return KindMissingInput
	default:
		return KindUnexpected
	}
}

// unexpectedError matches ErrUnexpected and still unwraps to the store or notifier cause.
type unexpectedError struct {
	op    string
	cause error
}

func unexpected(op string, cause error) error {
	return &unexpectedError{op: op, cause: cause}
}

func (e *unexpectedError) Error() string {
	return "[auth.Service." + e.op + "] " + e.cause.Error()
}

func (e *unexpectedError) Unwrap() []error {
	return []error{ErrUnexpected, e.cause}
}
