package users

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnexpected         = errors.New("unexpected user store error")
)

// Repo is the credential store. Implementations must allow concurrent readers and
// serialise writers so that a half-written account is never observable.
type Repo interface {
	// Add inserts the user, failing with ErrUserAlreadyExists if the email is taken.
	Add(ctx context.Context, user *User) error
	// Get returns ErrUserNotFound for unknown emails.
	Get(ctx context.Context, email Email) (*User, error)
	// Validate returns ErrUserNotFound or ErrInvalidCredentials on failure.
	Validate(ctx context.Context, email Email, password Password) error
}
