package twofarepofake

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/auth-service/twofa"
	"github.com/jrsteele09/auth-service/users"
)

var _ twofa.CodeRepo = (*FakeCodeRepo)(nil)

type entry struct {
	challenge twofa.Challenge
	expiresAt time.Time
}

// FakeCodeRepo is an in-memory challenge store with per-entry expiry.
type FakeCodeRepo struct {
	codes   map[users.Email]entry
	ttl     time.Duration
	nowFunc func() time.Time
	lock    sync.RWMutex
}

type Option func(*FakeCodeRepo)

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) Option {
	return func(r *FakeCodeRepo) {
		r.nowFunc = now
	}
}

func NewFakeCodeRepo(ttl time.Duration, options ...Option) *FakeCodeRepo {
	r := &FakeCodeRepo{
		codes:   make(map[users.Email]entry),
		ttl:     ttl,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *FakeCodeRepo) Put(_ context.Context, email users.Email, id twofa.LoginAttemptID, code twofa.Code) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.codes[email] = entry{
		challenge: twofa.Challenge{Email: email, LoginAttemptID: id, Code: code},
		expiresAt: r.nowFunc().Add(r.ttl),
	}
	return nil
}

func (r *FakeCodeRepo) Get(_ context.Context, email users.Email) (*twofa.Challenge, error) {
	r.lock.RLock()
	e, ok := r.codes[email]
	r.lock.RUnlock()
	if !ok {
		return nil, twofa.ErrLoginAttemptIDNotFound
	}
	if !e.expiresAt.After(r.nowFunc()) {
		r.lock.Lock()
		// a newer Put may have landed between the two locks
		if cur, ok := r.codes[email]; ok && cur.challenge == e.challenge && cur.expiresAt.Equal(e.expiresAt) {
			delete(r.codes, email)
		}
		r.lock.Unlock()
		return nil, twofa.ErrLoginAttemptIDNotFound
	}
	challenge := e.challenge
	return &challenge, nil
}

func (r *FakeCodeRepo) Remove(_ context.Context, email users.Email) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.codes, email)
	return nil
}

func (r *FakeCodeRepo) Take(_ context.Context, email users.Email, id twofa.LoginAttemptID, code twofa.Code) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, ok := r.codes[email]
	if !ok {
		return twofa.ErrLoginAttemptIDNotFound
	}
	if !e.expiresAt.After(r.nowFunc()) {
		delete(r.codes, email)
		return twofa.ErrLoginAttemptIDNotFound
	}
	if !e.challenge.Matches(id, code) {
		return twofa.ErrChallengeMismatch
	}
	delete(r.codes, email)
	return nil
}
