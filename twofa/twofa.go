// Package twofa holds the two-factor login challenge types and the challenge store contract.
package twofa

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/auth-service/users"
)

// CodeLength is the number of digits in a two-factor code
const CodeLength = 6

var (
	ErrInvalidLoginAttemptID  = errors.New("invalid login attempt id")
	ErrInvalidCode            = errors.New("invalid 2FA code")
	ErrLoginAttemptIDNotFound = errors.New("login attempt id not found")
	ErrChallengeMismatch      = errors.New("login attempt id or 2FA code does not match")
	ErrUnexpected             = errors.New("unexpected 2FA code store error")
)

var codeSpace = big.NewInt(1_000_000)

// LoginAttemptID identifies one login attempt. It is a random (v4) UUID.
type LoginAttemptID string

// NewLoginAttemptID returns a fresh random attempt id
func NewLoginAttemptID() LoginAttemptID {
	return LoginAttemptID(uuid.New().String())
}

func ParseLoginAttemptID(s string) (LoginAttemptID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", ErrInvalidLoginAttemptID
	}
	return LoginAttemptID(id.String()), nil
}

func (id LoginAttemptID) String() string {
	return string(id)
}

// Code is a fixed-length numeric one-time code.
type Code string

// NewCode draws a uniformly distributed 6 digit code from crypto/rand
func NewCode() (Code, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", errors.Wrap(err, "[twofa.NewCode] rand.Int")
	}
	return Code(fmt.Sprintf("%0*d", CodeLength, n.Int64())), nil
}

func ParseCode(s string) (Code, error) {
	if len(s) != CodeLength {
		return "", ErrInvalidCode
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", ErrInvalidCode
		}
	}
	return Code(s), nil
}

func (c Code) String() string {
	return string(c)
}

// Challenge is the outstanding two-factor challenge for one email.
type Challenge struct {
	Email          users.Email
	LoginAttemptID LoginAttemptID
	Code           Code
}

// Matches compares both halves of the pair in constant time.
func (c Challenge) Matches(id LoginAttemptID, code Code) bool {
	idOK := subtle.ConstantTimeCompare([]byte(c.LoginAttemptID), []byte(id)) == 1
	codeOK := subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) == 1
	return idOK && codeOK
}

// CodeRepo is the challenge store. At most one challenge lives per email.
type CodeRepo interface {
	// Put replaces any existing challenge for the email.
	Put(ctx context.Context, email users.Email, id LoginAttemptID, code Code) error
	// Get returns ErrLoginAttemptIDNotFound when nothing is stored or the entry has expired.
	Get(ctx context.Context, email users.Email) (*Challenge, error)
	// Remove is idempotent.
	Remove(ctx context.Context, email users.Email) error
	// Take consumes the challenge for email if id and code match it, in one atomic step: of any
	// number of concurrent Takes with the right pair exactly one succeeds. A wrong pair returns
	// ErrChallengeMismatch and leaves the challenge in place.
	Take(ctx context.Context, email users.Email, id LoginAttemptID, code Code) error
}
