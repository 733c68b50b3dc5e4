package users

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the shortest password accepted at signup and login
	MinPasswordLength = 8

	redacted = "[REDACTED]"
)

var (
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidPassword = errors.New("password must be at least 8 characters long")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9-]+(\.[a-zA-Z0-9-]+)*\.[a-zA-Z]{2,}$`)

// Email is a validated, normalised email address. It is the key of every store.
type Email string

// ParseEmail trims and lower-cases s before validating it.
func ParseEmail(s string) (Email, error) {
	normalised := strings.ToLower(strings.TrimSpace(s))
	if normalised == "" || strings.Count(normalised, "@") != 1 {
		return "", ErrInvalidEmail
	}
	if !emailPattern.MatchString(normalised) {
		return "", ErrInvalidEmail
	}
	return Email(normalised), nil
}

func (e Email) String() string {
	return string(e)
}

// Password holds a cleartext password between request parsing and hashing.
// It renders as [REDACTED] when printed, logged or marshalled.
type Password struct {
	value string
}

// ParsePassword checks the minimum length
func ParsePassword(s string) (Password, error) {
	if len(s) < MinPasswordLength {
		return Password{}, ErrInvalidPassword
	}
	return Password{value: s}, nil
}

// Expose returns the cleartext. Only the hashing boundary should call it.
func (p Password) Expose() string {
	return p.value
}

func (p Password) String() string {
	return redacted
}

func (p Password) GoString() string {
	return redacted
}

func (p Password) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}

func (p Password) MarshalZerologObject(e *zerolog.Event) {
	e.Str("password", redacted)
}

// User is the account record held by the credential store.
type User struct {
	Email        Email  `json:"email"`
	PasswordHash string `json:"-"` // never serialize
	Requires2FA  bool   `json:"requires2FA"`
}

// NewUser hashes the password with the given bcrypt cost and builds the account record
func NewUser(email Email, password Password, requires2FA bool, cost int) (*User, error) {
	hash, err := HashPassword(password, cost)
	if err != nil {
		return nil, errors.Wrap(err, "[users.NewUser] HashPassword")
	}
	return &User{
		Email:        email,
		PasswordHash: hash,
		Requires2FA:  requires2FA,
	}, nil
}

// HashPassword bcrypt-hashes the password. A cost outside bcrypt's range falls back to the default.
func HashPassword(password Password, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password.Expose()), cost)
	return string(bytes), err
}

func CheckPasswordHash(password Password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password.Expose()))
	return err == nil
}

// CheckPassword checks a password against the user's hash
func (u *User) CheckPassword(password Password) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}
