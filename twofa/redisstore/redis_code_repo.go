// Package redisstore is the expiring Redis-backed challenge store.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/jrsteele09/auth-service/internal/errors"
	"github.com/jrsteele09/auth-service/twofa"
	"github.com/jrsteele09/auth-service/users"
)

var _ twofa.CodeRepo = (*CodeRepo)(nil)

const (
	defaultPrefix  = "two_fa_code:"
	maxTakeRetries = 4
)

type record struct {
	LoginAttemptID string `json:"loginAttemptId"`
	Code           string `json:"code"`
}

// CodeRepo keeps one key per email; Redis expires it after ttl.
type CodeRepo struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewCodeRepo(client redis.UniversalClient, prefix string, ttl time.Duration) *CodeRepo {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &CodeRepo{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *CodeRepo) key(email users.Email) string {
	return s.prefix + email.String()
}

func (s *CodeRepo) Put(ctx context.Context, email users.Email, id twofa.LoginAttemptID, code twofa.Code) error {
	value, err := json.Marshal(record{LoginAttemptID: id.String(), Code: code.String()})
	if err != nil {
		return apperrors.Wrapf(twofa.ErrUnexpected, "[redisstore.CodeRepo.Put] marshal %v", err)
	}
	if err := s.redis.Set(ctx, s.key(email), value, s.ttl).Err(); err != nil {
		return apperrors.Wrapf(twofa.ErrUnexpected, "[redisstore.CodeRepo.Put] %v", err)
	}
	return nil
}

func (s *CodeRepo) Get(ctx context.Context, email users.Email) (*twofa.Challenge, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, twofa.ErrLoginAttemptIDNotFound
		}
		return nil, apperrors.Wrapf(twofa.ErrUnexpected, "[redisstore.CodeRepo.Get] %v", err)
	}
	return decodeChallenge(email, data)
}

// Take checks and deletes inside WATCH/MULTI. A concurrent write to the key aborts the
// transaction and the check is repeated against whatever is stored now.
func (s *CodeRepo) Take(ctx context.Context, email users.Email, id twofa.LoginAttemptID, code twofa.Code) error {
	key := s.key(email)
	for i := 0; i < maxTakeRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			challenge, err := decodeChallenge(email, data)
			if err != nil {
				return err
			}
			if !challenge.Matches(id, code) {
				return twofa.ErrChallengeMismatch
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return twofa.ErrLoginAttemptIDNotFound
		case errors.Is(err, twofa.ErrChallengeMismatch), errors.Is(err, twofa.ErrUnexpected):
			return err
		default:
			return apperrors.Wrapf(twofa.ErrUnexpected, "[redisstore.CodeRepo.Take] %v", err)
		}
	}
	// still contended after every retry; someone else is consuming or replacing it
	return twofa.ErrLoginAttemptIDNotFound
}

func decodeChallenge(email users.Email, data []byte) (*twofa.Challenge, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.Wrapf(apperrors.Join(twofa.ErrUnexpected, apperrors.ErrCorruptRecord), "[redisstore.CodeRepo] %v", err)
	}
	id, err := twofa.ParseLoginAttemptID(rec.LoginAttemptID)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.Join(twofa.ErrUnexpected, apperrors.ErrCorruptRecord), "[redisstore.CodeRepo] %v", err)
	}
	code, err := twofa.ParseCode(rec.Code)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.Join(twofa.ErrUnexpected, apperrors.ErrCorruptRecord), "[redisstore.CodeRepo] %v", err)
	}
	return &twofa.Challenge{Email: email, LoginAttemptID: id, Code: code}, nil
}

func (s *CodeRepo) Remove(ctx context.Context, email users.Email) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return apperrors.Wrapf(twofa.ErrUnexpected, "[redisstore.CodeRepo.Remove] %v", err)
	}
	return nil
}
