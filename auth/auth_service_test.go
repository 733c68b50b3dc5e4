package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/auth-service/auth"
	"github.com/jrsteele09/auth-service/email"
	"github.com/jrsteele09/auth-service/token"
	"github.com/jrsteele09/auth-service/twofa"
	twofarepofake "github.com/jrsteele09/auth-service/twofa/repofake"
	"github.com/jrsteele09/auth-service/users"
	fakeuserrepo "github.com/jrsteele09/auth-service/users/repofake"
)

const (
	secretStr        = "1234-test-secret"
	testUserEmail    = "john.doe@example.com"
	testUserPassword = "password123"
)

var errBackendDown = errors.New("backend down")

type sentEmail struct {
	Recipient users.Email
	Subject   string
	Content   string
}

// recordingEmailClient keeps every message so tests can read the code
type recordingEmailClient struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (c *recordingEmailClient) SendEmail(_ context.Context, recipient users.Email, subject, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentEmail{Recipient: recipient, Subject: subject, Content: content})
	return c.err
}

func (c *recordingEmailClient) last(t *testing.T) sentEmail {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	return c.sent[len(c.sent)-1]
}

// failingCodeRepo behaves like an unreachable backend
type failingCodeRepo struct{}

func (failingCodeRepo) Put(context.Context, users.Email, twofa.LoginAttemptID, twofa.Code) error {
	return errors.Wrap(twofa.ErrUnexpected, errBackendDown.Error())
}

func (failingCodeRepo) Get(context.Context, users.Email) (*twofa.Challenge, error) {
	return nil, errors.Wrap(twofa.ErrUnexpected, errBackendDown.Error())
}

func (failingCodeRepo) Remove(context.Context, users.Email) error {
	return errors.Wrap(twofa.ErrUnexpected, errBackendDown.Error())
}

func (failingCodeRepo) Take(context.Context, users.Email, twofa.LoginAttemptID, twofa.Code) error {
	return errors.Wrap(twofa.ErrUnexpected, errBackendDown.Error())
}

// blockingRevokedCache never answers before the context ends
type blockingRevokedCache struct{}

func (blockingRevokedCache) Revoke(ctx context.Context, _ string, _ time.Time) error {
	<-ctx.Done()
	return errors.Wrap(token.ErrRevocationUnavailable, ctx.Err().Error())
}

func (blockingRevokedCache) IsRevoked(ctx context.Context, _ string) (bool, error) {
	<-ctx.Done()
	return false, errors.Wrap(token.ErrRevocationUnavailable, ctx.Err().Error())
}

// testFixture holds all test dependencies
type testFixture struct {
	userRepo *fakeuserrepo.FakeUserRepo
	codeRepo twofa.CodeRepo
	revoked  token.RevokedTokenCache
	tokens   *token.Manager
	mailer   *recordingEmailClient
	service  *auth.Service
}

type fixtureOption func(*testFixture)

func withCodeRepo(r twofa.CodeRepo) fixtureOption {
	return func(f *testFixture) { f.codeRepo = r }
}

func withRevoked(r token.RevokedTokenCache) fixtureOption {
	return func(f *testFixture) { f.revoked = r }
}

func setupTestFixture(t *testing.T, options ...fixtureOption) *testFixture {
	t.Helper()

	signer, err := token.NewHMACSigner(secretStr)
	require.NoError(t, err)
	tm, err := token.New(signer, token.WithTokenExpiry(10*time.Minute))
	require.NoError(t, err)

	f := &testFixture{
		userRepo: fakeuserrepo.NewFakeUserRepo(),
		codeRepo: twofarepofake.NewFakeCodeRepo(10 * time.Minute),
		revoked:  token.NewInMemoryRevokedTokenCache(),
		tokens:   tm,
		mailer:   &recordingEmailClient{},
	}
	for _, opt := range options {
		opt(f)
	}

	f.service, err = auth.NewService(
		auth.Repos{Users: f.userRepo, Codes: f.codeRepo, Revoked: f.revoked},
		f.tokens,
		f.mailer,
		auth.WithBcryptCost(bcrypt.MinCost),
		auth.WithStoreTimeout(100*time.Millisecond),
	)
	require.NoError(t, err)
	return f
}

func (f *testFixture) signup(t *testing.T, requires2FA bool) {
	t.Helper()
	require.NoError(t, f.service.Signup(context.Background(), testUserEmail, testUserPassword, requires2FA))
}

func TestNewService_RequiresDependencies(t *testing.T) {
	f := setupTestFixture(t)

	_, err := auth.NewService(auth.Repos{Codes: f.codeRepo, Revoked: f.revoked}, f.tokens, f.mailer)
	require.Error(t, err)
	_, err = auth.NewService(auth.Repos{Users: f.userRepo, Revoked: f.revoked}, f.tokens, f.mailer)
	require.Error(t, err)
	_, err = auth.NewService(auth.Repos{Users: f.userRepo, Codes: f.codeRepo}, f.tokens, f.mailer)
	require.Error(t, err)
	_, err = auth.NewService(auth.Repos{Users: f.userRepo, Codes: f.codeRepo, Revoked: f.revoked}, nil, f.mailer)
	require.Error(t, err)
	_, err = auth.NewService(auth.Repos{Users: f.userRepo, Codes: f.codeRepo, Revoked: f.revoked}, f.tokens, nil)
	require.Error(t, err)
}

func TestSignup(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	require.NoError(t, f.service.Signup(ctx, testUserEmail, testUserPassword, false))
	require.ErrorIs(t, f.service.Signup(ctx, testUserEmail, testUserPassword, false), auth.ErrUserAlreadyExists)
	// normalised email collides too
	require.ErrorIs(t, f.service.Signup(ctx, "John.Doe@Example.com", testUserPassword, true), auth.ErrUserAlreadyExists)

	stored, err := f.userRepo.Get(ctx, users.Email(testUserEmail))
	require.NoError(t, err)
	require.NotEqual(t, testUserPassword, stored.PasswordHash)
}

func TestSignup_Validation(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	require.ErrorIs(t, f.service.Signup(ctx, "", testUserPassword, false), auth.ErrInvalidInput)
	require.ErrorIs(t, f.service.Signup(ctx, "no-at-sign", testUserPassword, false), auth.ErrInvalidInput)
	require.ErrorIs(t, f.service.Signup(ctx, testUserEmail, "1234567", false), auth.ErrInvalidInput)
	require.NoError(t, f.service.Signup(ctx, testUserEmail, "12345678", false))

	require.Equal(t, auth.KindValidation, auth.Kind(f.service.Signup(ctx, "", "", false)))
}

func TestLogin_NoTwoFactor(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.signup(t, false)

	res, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.Equal(t, auth.StateAuthenticated, res.State)
	require.NotEmpty(t, res.Token)
	require.True(t, res.ExpiresAt.After(time.Now()))
	require.Empty(t, res.LoginAttemptID)

	claims, err := f.service.VerifyToken(ctx, res.Token)
	require.NoError(t, err)
	require.Equal(t, users.Email(testUserEmail), claims.Email)
	require.Empty(t, f.mailer.sent)
}

func TestLogin_IncorrectCredentialsAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.signup(t, false)

	_, wrongPassword := f.service.Login(ctx, testUserEmail, "wrongpassword")
	_, unknownUser := f.service.Login(ctx, "nobody@example.com", testUserPassword)

	require.ErrorIs(t, wrongPassword, auth.ErrIncorrectCredentials)
	require.ErrorIs(t, unknownUser, auth.ErrIncorrectCredentials)
	require.Equal(t, wrongPassword.Error(), unknownUser.Error())
	require.Equal(t, auth.KindAuthFailure, auth.Kind(unknownUser))

	_, err := f.service.Login(ctx, testUserEmail, "short")
	require.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestLogin_TwoFactorFlow(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.signup(t, true)

	res, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.Equal(t, auth.StatePending2FA, res.State)
	require.Empty(t, res.Token)
	require.NotEmpty(t, res.LoginAttemptID)

	sent := f.mailer.last(t)
	require.Equal(t, users.Email(testUserEmail), sent.Recipient)
	require.Equal(t, email.TwoFactorSubject, sent.Subject)
	require.Len(t, sent.Content, twofa.CodeLength)

	verified, err := f.service.VerifyTwoFactor(ctx, testUserEmail, res.LoginAttemptID.String(), sent.Content)
	require.NoError(t, err)
	require.Equal(t, auth.StateAuthenticated, verified.State)
	require.NotEmpty(t, verified.Token)

	// single use
	_, err = f.service.VerifyTwoFactor(ctx, testUserEmail, res.LoginAttemptID.String(), sent.Content)
	require.ErrorIs(t, err, auth.ErrIncorrectCredentials)
}

func TestLogin_SecondLoginInvalidatesFirstChallenge(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.signup(t, true)

	first, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	firstCode := f.mailer.last(t).Content

	second, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	secondCode := f.mailer.last(t).Content
	require.NotEqual(t, first.LoginAttemptID, second.LoginAttemptID)

	_, err = f.service.VerifyTwoFactor(ctx, testUserEmail, first.LoginAttemptID.String(), firstCode)
	require.ErrorIs(t, err, auth.ErrIncorrectCredentials)

	// the first attempt id with the second code is also a mismatch
	if firstCode != secondCode {
		_, err = f.service.VerifyTwoFactor(ctx, testUserEmail, first.LoginAttemptID.String(), secondCode)
		require.ErrorIs(t, err, auth.ErrIncorrectCredentials)
	}

	res, err := f.service.VerifyTwoFactor(ctx, testUserEmail, second.LoginAttemptID.String(), secondCode)
	require.NoError(t, err)
	require.Equal(t, auth.StateAuthenticated, res.State)
}

func TestVerifyTwoFactor_Failures(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.signup(t, true)

	res, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	code := f.mailer.last(t).Content
	wrongCode := "000000"
	if code == wrongCode {
		wrongCode = "111111"
	}

	tests := []struct {
		name    string
		email   string
		id      string
		code    string
		wantErr error
	}{
		{name: "bad email", email: "nope", id: res.LoginAttemptID.String(), code: code, wantErr: auth.ErrInvalidInput},
		{name: "bad attempt id", email: testUserEmail, id: "123", code: code, wantErr: auth.ErrInvalidInput},
		{name: "bad code format", email: testUserEmail, id: res.LoginAttemptID.String(), code: "12ab56", wantErr: auth.ErrInvalidInput},
		{name: "wrong code", email: testUserEmail, id: res.LoginAttemptID.String(), code: wrongCode, wantErr: auth.ErrIncorrectCredentials},
		{name: "wrong attempt id", email: testUserEmail, id: twofa.NewLoginAttemptID().String(), code: code, wantErr: auth.ErrIncorrectCredentials},
		{name: "no challenge", email: "other@example.com", id: res.LoginAttemptID.String(), code: code, wantErr: auth.ErrIncorrectCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.VerifyTwoFactor(ctx, tt.email, tt.id, tt.code)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	// failed attempts do not consume the challenge
	_, err = f.service.VerifyTwoFactor(ctx, testUserEmail, res.LoginAttemptID.String(), code)
	require.NoError(t, err)
}

// slowCodeRepo delays every store call so concurrent verifications overlap
type slowCodeRepo struct {
	twofa.CodeRepo
	delay time.Duration
}

func (r slowCodeRepo) Get(ctx context.Context, email users.Email) (*twofa.Challenge, error) {
	time.Sleep(r.delay)
	return r.CodeRepo.Get(ctx, email)
}

func (r slowCodeRepo) Take(ctx context.Context, email users.Email, id twofa.LoginAttemptID, code twofa.Code) error {
	time.Sleep(r.delay)
	return r.CodeRepo.Take(ctx, email, id, code)
}

func TestVerifyTwoFactor_ConcurrentSamePairSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, withCodeRepo(slowCodeRepo{
		CodeRepo: twofarepofake.NewFakeCodeRepo(10 * time.Minute),
		delay:    20 * time.Millisecond,
	}))
	f.signup(t, true)

	res, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	code := f.mailer.last(t).Content

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.service.VerifyTwoFactor(ctx, testUserEmail, res.LoginAttemptID.String(), code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, auth.ErrIncorrectCredentials):
				rejected++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, succeeded)
	require.Equal(t, attempts-1, rejected)
}

func TestLogin_NotifierFailureKeepsChallenge(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.signup(t, true)
	f.mailer.err = errors.Wrap(email.ErrDeliveryFailed, "smtp down")

	_, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.ErrorIs(t, err, auth.ErrUnexpected)
	require.ErrorIs(t, err, email.ErrDeliveryFailed)
	require.Equal(t, auth.KindUnexpected, auth.Kind(err))

	challenge, err := f.codeRepo.Get(ctx, users.Email(testUserEmail))
	require.NoError(t, err)
	require.Equal(t, f.mailer.last(t).Content, challenge.Code.String())
}

func TestLogin_ChallengeStoreDown(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, withCodeRepo(failingCodeRepo{}))
	f.signup(t, true)

	_, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.ErrorIs(t, err, auth.ErrUnexpected)
	require.ErrorIs(t, err, twofa.ErrUnexpected)
	require.Empty(t, f.mailer.sent)

	_, err = f.service.VerifyTwoFactor(ctx, testUserEmail, twofa.NewLoginAttemptID().String(), "123456")
	require.ErrorIs(t, err, auth.ErrUnexpected)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.signup(t, false)

	res, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, res.Token))

	_, err = f.service.VerifyToken(ctx, res.Token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	// presenting the revoked token again is invalid, presenting nothing is missing
	require.ErrorIs(t, f.service.Logout(ctx, res.Token), auth.ErrInvalidToken)
	require.ErrorIs(t, f.service.Logout(ctx, ""), auth.ErrMissingToken)
	require.Equal(t, auth.KindMissingInput, auth.Kind(f.service.Logout(ctx, "")))

	require.ErrorIs(t, f.service.Logout(ctx, "garbage"), auth.ErrInvalidToken)
}

func TestLogout_RevokesEveryEncodingOfTheToken(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.signup(t, false)

	res, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.NoError(t, f.service.Logout(ctx, res.Token))

	_, err = f.service.VerifyToken(ctx, res.Token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	// same signature bytes, different final character
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	last := strings.IndexByte(alphabet, res.Token[len(res.Token)-1])
	require.GreaterOrEqual(t, last, 0)
	variant := res.Token[:len(res.Token)-1] + string(alphabet[last^1])
	_, err = f.service.VerifyToken(ctx, variant)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	// same claims re-signed under a different header still carry the revoked jti
	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(res.Token, claims)
	require.NoError(t, err)
	resigned := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	resigned.Header["kid"] = "other"
	reissued, err := resigned.SignedString([]byte(secretStr))
	require.NoError(t, err)
	require.NotEqual(t, res.Token, reissued)

	_, err = f.service.VerifyToken(ctx, reissued)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
	require.ErrorIs(t, f.service.Logout(ctx, reissued), auth.ErrInvalidToken)
}

func TestVerifyToken_RejectsForeignAndExpiredTokens(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	otherSigner, err := token.NewHMACSigner("some-other-secret")
	require.NoError(t, err)
	other, err := token.New(otherSigner)
	require.NoError(t, err)
	foreign, _, err := other.Issue(users.Email(testUserEmail))
	require.NoError(t, err)
	_, err = f.service.VerifyToken(ctx, foreign)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	past := time.Now().Add(-time.Hour)
	signer, err := token.NewHMACSigner(secretStr)
	require.NoError(t, err)
	old, err := token.New(signer, token.WithTokenExpiry(time.Minute), token.WithNowFunc(func() time.Time { return past }))
	require.NoError(t, err)
	expired, _, err := old.Issue(users.Email(testUserEmail))
	require.NoError(t, err)
	_, err = f.service.VerifyToken(ctx, expired)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = f.service.VerifyToken(ctx, "")
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyToken_RevocationBackendTimesOut(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, withRevoked(blockingRevokedCache{}))
	f.signup(t, false)

	res, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)

	start := time.Now()
	_, err = f.service.VerifyToken(ctx, res.Token)
	require.ErrorIs(t, err, auth.ErrUnexpected)
	require.ErrorIs(t, err, token.ErrRevocationUnavailable)
	require.Less(t, time.Since(start), 2*time.Second)

	require.ErrorIs(t, f.service.Logout(ctx, res.Token), auth.ErrUnexpected)
}

func TestKind(t *testing.T) {
	require.Equal(t, auth.KindValidation, auth.Kind(auth.ErrInvalidInput))
	require.Equal(t, auth.KindConflict, auth.Kind(auth.ErrUserAlreadyExists))
	require.Equal(t, auth.KindAuthFailure, auth.Kind(auth.ErrIncorrectCredentials))
	require.Equal(t, auth.KindAuthFailure, auth.Kind(auth.ErrInvalidToken))
	require.Equal(t, auth.KindMissingInput, auth.Kind(auth.ErrMissingToken))
	require.Equal(t, auth.KindUnexpected, auth.Kind(auth.ErrUnexpected))
	require.Equal(t, auth.KindUnexpected, auth.Kind(errors.New("something else")))
	require.Equal(t, "auth_failure", auth.KindAuthFailure.String())
}
