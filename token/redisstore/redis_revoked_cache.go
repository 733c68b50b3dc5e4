// Package redisstore keeps revoked token ids in Redis with a TTL bounded by the token's expiry.
package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/jrsteele09/auth-service/internal/errors"
	"github.com/jrsteele09/auth-service/token"
)

var _ token.RevokedTokenCache = (*RevokedTokenCache)(nil)

const defaultPrefix = "banned_token:"

type RevokedTokenCache struct {
	redis   redis.UniversalClient
	prefix  string
	nowFunc func() time.Time
}

type Option func(*RevokedTokenCache)

// WithNowFunc sets the clock used to compute the remaining lifetime
func WithNowFunc(now func() time.Time) Option {
	return func(c *RevokedTokenCache) {
		c.nowFunc = now
	}
}

func NewRevokedTokenCache(client redis.UniversalClient, prefix string, options ...Option) *RevokedTokenCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	c := &RevokedTokenCache{
		redis:   client,
		prefix:  prefix,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *RevokedTokenCache) key(jti string) string {
	return c.prefix + jti
}

// Revoke writes nothing for a token that has already expired; verification rejects it anyway.
func (c *RevokedTokenCache) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(c.nowFunc())
	if ttl <= 0 {
		return nil
	}
	// redis rounds sub-second expiries down to nothing useful
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := c.redis.Set(ctx, c.key(jti), 1, ttl).Err(); err != nil {
		return apperrors.Wrapf(token.ErrRevocationUnavailable, "[redisstore.RevokedTokenCache.Revoke] %v", err)
	}
	return nil
}

func (c *RevokedTokenCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.key(jti)).Result()
	if err != nil {
		return false, apperrors.Wrapf(token.ErrRevocationUnavailable, "[redisstore.RevokedTokenCache.IsRevoked] %v", err)
	}
	return n > 0, nil
}
