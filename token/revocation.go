package token

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrRevocationUnavailable = errors.New("revocation store unavailable")

// RevokedTokenCache is the set of tokens that must be rejected even though they still verify.
// Entries are keyed by the token id (jti claim), never the encoded token, so a re-encoding of a
// revoked token is still revoked.
type RevokedTokenCache interface {
	// Revoke is idempotent. expiresAt bounds how long the entry needs to be kept.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	// IsRevoked only fails with ErrRevocationUnavailable.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

var _ RevokedTokenCache = (*InMemoryRevokedTokenCache)(nil)

// InMemoryRevokedTokenCache keeps entries until Cleanup is called, so it grows without
// bound in a long-running process. Use it for tests and local development only.
type InMemoryRevokedTokenCache struct {
	revoked map[string]time.Time
	nowFunc func() time.Time
	mu      sync.RWMutex
}

type CacheOption func(*InMemoryRevokedTokenCache)

// WithCacheNowFunc sets the clock used by Cleanup
func WithCacheNowFunc(now func() time.Time) CacheOption {
	return func(c *InMemoryRevokedTokenCache) {
		c.nowFunc = now
	}
}

func NewInMemoryRevokedTokenCache(options ...CacheOption) *InMemoryRevokedTokenCache {
	c := &InMemoryRevokedTokenCache{
		revoked: make(map[string]time.Time),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *InMemoryRevokedTokenCache) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = expiresAt
	return nil
}

func (c *InMemoryRevokedTokenCache) IsRevoked(_ context.Context, jti string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[jti]
	return exists, nil
}

// Cleanup drops entries whose token has expired anyway. It returns the number removed.
func (c *InMemoryRevokedTokenCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	removed := 0
	for jti, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, jti)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries held.
func (c *InMemoryRevokedTokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.revoked)
}
