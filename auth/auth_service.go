// Package auth composes the credential, challenge and revocation stores with the token
// manager into the signup, login, two-factor, logout and token verification flows.
package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/auth-service/email"
	"github.com/jrsteele09/auth-service/token"
	"github.com/jrsteele09/auth-service/twofa"
	"github.com/jrsteele09/auth-service/users"
)

const (
	DefaultStoreTimeout = 2 * time.Second

	// never a valid login; hashed once so unknown emails cost a bcrypt compare too
	dummyPassword = "not-a-real-password"
)

// Repos holds all store dependencies for the Service
type Repos struct {
	Users   users.Repo              // Accounts
	Codes   twofa.CodeRepo          // Outstanding two-factor challenges
	Revoked token.RevokedTokenCache // Tokens rejected before their expiry
}

// LoginResult is the outcome of a successful Login or VerifyTwoFactor.
// Token and ExpiresAt are set when State is StateAuthenticated,
// LoginAttemptID when State is StatePending2FA.
type LoginResult struct {
	State          State
	Token          string
	ExpiresAt      time.Time
	LoginAttemptID twofa.LoginAttemptID
}

type Service struct {
	repos        Repos
	tokens       *token.Manager
	notifier     email.Client
	bcryptCost   int
	storeTimeout time.Duration
	dummyHash    string
}

type ServiceOption func(*Service)

func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// WithStoreTimeout bounds every individual store call
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.storeTimeout = d
	}
}

func NewService(repos Repos, tokens *token.Manager, notifier email.Client, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Codes == nil {
		return nil, errors.New("[NewService] Codes repo is required")
	}
	if repos.Revoked == nil {
		return nil, errors.New("[NewService] Revoked token cache is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewService] token manager is required")
	}
	if notifier == nil {
		return nil, errors.New("[NewService] email client is required")
	}

	s := &Service{
		repos:        repos,
		tokens:       tokens,
		notifier:     notifier,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = DefaultStoreTimeout
	}

	dummy, _ := users.ParsePassword(dummyPassword)
	hash, err := users.HashPassword(dummy, s.bcryptCost)
	if err != nil {
		return nil, errors.Wrap(err, "[NewService] HashPassword")
	}
	s.dummyHash = hash
	return s, nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Signup creates an account. Format errors are reported before any store is touched.
func (s *Service) Signup(ctx context.Context, rawEmail, rawPassword string, requires2FA bool) error {
	email, password, err := parseCredentials(rawEmail, rawPassword)
	if err != nil {
		return err
	}

	user, err := users.NewUser(email, password, requires2FA, s.bcryptCost)
	if err != nil {
		return unexpected("Signup", err)
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.repos.Users.Add(sctx, user); err != nil {
		if errors.Is(err, users.ErrUserAlreadyExists) {
			return ErrUserAlreadyExists
		}
		return unexpected("Signup", err)
	}

	zerolog.Ctx(ctx).Info().Str("email", email.String()).Bool("requires2FA", requires2FA).Msg("user signed up")
	return nil
}

// Login checks the credentials. Unknown email and wrong password both give ErrIncorrectCredentials.
// Accounts with two-factor enabled get a challenge instead of a token.
func (s *Service) Login(ctx context.Context, rawEmail, rawPassword string) (*LoginResult, error) {
	email, password, err := parseCredentials(rawEmail, rawPassword)
	if err != nil {
		return nil, err
	}

	user, err := s.validate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if !user.Requires2FA {
		return s.authenticate(ctx, "Login", email)
	}
	return s.challenge(ctx, email)
}

func (s *Service) validate(ctx context.Context, email users.Email, password users.Password) (*users.User, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.repos.Users.Validate(sctx, email, password); err != nil {
		switch {
		case errors.Is(err, users.ErrUserNotFound):
			users.CheckPasswordHash(password, s.dummyHash)
			return nil, ErrIncorrectCredentials
		case errors.Is(err, users.ErrInvalidCredentials):
			return nil, ErrIncorrectCredentials
		default:
			return nil, unexpected("Login", err)
		}
	}

	user, err := s.repos.Users.Get(sctx, email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrIncorrectCredentials
		}
		return nil, unexpected("Login", err)
	}
	return user, nil
}

// challenge replaces any earlier challenge for recipient and sends the new code.
// A failed send leaves the challenge in place; the next login overwrites it.
func (s *Service) challenge(ctx context.Context, recipient users.Email) (*LoginResult, error) {
	id := twofa.NewLoginAttemptID()
	code, err := twofa.NewCode()
	if err != nil {
		return nil, unexpected("Login", err)
	}

	sctx, cancel := s.storeContext(ctx)
	err = s.repos.Codes.Put(sctx, recipient, id, code)
	cancel()
	if err != nil {
		return nil, unexpected("Login", err)
	}

	if err := s.notifier.SendEmail(ctx, recipient, email.TwoFactorSubject, code.String()); err != nil {
		return nil, unexpected("Login", err)
	}

	zerolog.Ctx(ctx).Info().Str("email", recipient.String()).Stringer("state", StatePending2FA).Msg("second factor required")
	return &LoginResult{
		State:          StatePending2FA,
		LoginAttemptID: id,
	}, nil
}

func (s *Service) authenticate(ctx context.Context, op string, email users.Email) (*LoginResult, error) {
	signed, expiresAt, err := s.tokens.Issue(email)
	if err != nil {
		return nil, unexpected(op, err)
	}
	zerolog.Ctx(ctx).Info().Str("email", email.String()).Stringer("state", StateAuthenticated).Msg("token issued")
	return &LoginResult{
		State:     StateAuthenticated,
		Token:     signed,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyTwoFactor completes a pending login. The challenge is consumed atomically before the token
// is issued, so the same pair succeeds at most once even under concurrent calls.
func (s *Service) VerifyTwoFactor(ctx context.Context, rawEmail, rawLoginAttemptID, rawCode string) (*LoginResult, error) {
	email, err := users.ParseEmail(rawEmail)
	if err != nil {
		return nil, ErrInvalidInput
	}
	id, err := twofa.ParseLoginAttemptID(rawLoginAttemptID)
	if err != nil {
		return nil, ErrInvalidInput
	}
	code, err := twofa.ParseCode(rawCode)
	if err != nil {
		return nil, ErrInvalidInput
	}

	sctx, cancel := s.storeContext(ctx)
	err = s.repos.Codes.Take(sctx, email, id, code)
	cancel()
	if err != nil {
		if errors.Is(err, twofa.ErrLoginAttemptIDNotFound) || errors.Is(err, twofa.ErrChallengeMismatch) {
			return nil, ErrIncorrectCredentials
		}
		return nil, unexpected("VerifyTwoFactor", err)
	}
	return s.authenticate(ctx, "VerifyTwoFactor", email)
}

// Logout revokes a currently valid token. An empty token is ErrMissingToken; a token that does not
// verify or is already revoked is ErrInvalidToken.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return ErrMissingToken
	}
	claims, err := s.VerifyToken(ctx, raw)
	if err != nil {
		return err
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.repos.Revoked.Revoke(sctx, claims.ID, claims.ExpiresAt); err != nil {
		return unexpected("Logout", err)
	}

	zerolog.Ctx(ctx).Info().Str("email", claims.Email.String()).Stringer("state", StateRevoked).Msg("token revoked")
	return nil
}

// VerifyToken accepts a token only if it verifies and has not been revoked. The signature
// is checked first so that garbage never reaches the revocation backend.
func (s *Service) VerifyToken(ctx context.Context, raw string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("token rejected")
		return nil, ErrInvalidToken
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	revoked, err := s.repos.Revoked.IsRevoked(sctx, claims.ID)
	if err != nil {
		return nil, unexpected("VerifyToken", err)
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func parseCredentials(rawEmail, rawPassword string) (users.Email, users.Password, error) {
	email, err := users.ParseEmail(rawEmail)
	if err != nil {
		return "", users.Password{}, ErrInvalidInput
	}
	password, err := users.ParsePassword(rawPassword)
	if err != nil {
		return "", users.Password{}, ErrInvalidInput
	}
	return email, password, nil
}
