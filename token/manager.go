// Package token issues and verifies signed session tokens and tracks revoked ones.
package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/auth-service/users"
)

const DefaultTTL = 10 * time.Minute

var (
	ErrSigningKeyMissing = errors.New("token signing key is not configured")
	ErrMalformed         = errors.New("malformed token")
	ErrSignatureInvalid  = errors.New("token signature is invalid")
	ErrExpired           = errors.New("token has expired")
)

// Claims is what a verified session token asserts.
type Claims struct {
	Email     users.Email `json:"email"`
	ID        string      `json:"jti"`
	IssuedAt  time.Time   `json:"iat"`
	ExpiresAt time.Time   `json:"exp"`
}

// Manager signs session tokens for an email and checks them again later.
// It knows nothing about revocation; see RevokedTokenCache.
type Manager struct {
	signer  Signer
	ttl     time.Duration
	issuer  string
	nowFunc func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithIssuer adds an iss claim and requires it on verification
func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func New(signer Signer, options ...ManagerOption) (*Manager, error) {
	if signer == nil {
		return nil, ErrSigningKeyMissing
	}
	m := &Manager{
		signer: signer,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m, nil
}

// TTL is the lifetime given to every issued token.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue returns a signed token for email and the instant it stops being valid.
// The expiry is truncated to whole seconds so that it matches the exp claim.
func (m *Manager) Issue(email users.Email) (string, time.Time, error) {
	now := m.nowFunc()
	expiresAt := time.Unix(now.Add(m.ttl).Unix(), 0)

	claims := jwt.MapClaims{
		"sub": email.String(),
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"jti": uuid.New().String(),
	}
	if m.issuer != "" {
		claims["iss"] = m.issuer
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "Manager.Issue Sign")
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry. The returned error is one of ErrMalformed,
// ErrSignatureInvalid or ErrExpired. Segments must be canonical base64url, and a token
// without a jti is malformed.
func (m *Manager) Verify(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(m.nowFunc),
	}
	if m.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(m.issuer))
	}

	parsed, err := jwt.Parse(raw, m.signer.GetVerificationKey, parserOptions...)
	if err != nil {
		return nil, classify(err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}
	return claimsFrom(mapClaims)
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return errors.Wrap(ErrMalformed, err.Error())
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return errors.Wrap(ErrSignatureInvalid, err.Error())
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		// missing exp, wrong issuer, token used before nbf
		return errors.Wrap(ErrMalformed, err.Error())
	}
}

func claimsFrom(mc jwt.MapClaims) (*Claims, error) {
	sub, err := mc.GetSubject()
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, "sub")
	}
	email, err := users.ParseEmail(sub)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, "sub")
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.Wrap(ErrMalformed, "exp")
	}

	c := &Claims{
		Email:     email,
		ExpiresAt: exp.Time,
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	// revocation is keyed on jti
	jti, ok := mc["jti"].(string)
	if !ok || jti == "" {
		return nil, errors.Wrap(ErrMalformed, "jti")
	}
	c.ID = jti
	return c, nil
}
