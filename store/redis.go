package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/lingoleap/webauth/profile"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisWatchRetries = 4

// RedisStore persists the pair in Redis. The client is owned by the caller.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisStore creates a store writing prefix+access_token and prefix+user_info.
func NewRedisStore(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *RedisStore) tokenKey() string {
	return s.prefix + KeyAccessToken
}

func (s *RedisStore) profileKey() string {
	return s.prefix + KeyUserInfo
}

// Save writes both keys in one MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, token string, p profile.UserProfile) error {
	data, err := encodeRecord(token, p)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(), token, 0)
		pipe.Set(ctx, s.profileKey(), data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Load reads both keys under WATCH so a corrupt pair is only purged if nobody
// rewrote it in the meantime.
func (s *RedisStore) Load(ctx context.Context) (Credentials, bool, error) {
	tokenKey, profileKey := s.tokenKey(), s.profileKey()

	for i := 0; i < redisWatchRetries; i++ {
		var (
			creds Credentials
			found bool
		)
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			values, err := tx.MGet(ctx, tokenKey, profileKey).Result()
			if err != nil {
				return err
			}

			token, hasToken := values[0].(string)
			rawProfile, hasProfile := values[1].(string)

			resolved, outcome, reason := resolve(token, hasToken, []byte(rawProfile), hasProfile)
			switch outcome {
			case outcomeFound:
				creds, found = resolved, true
				return nil
			case outcomeCorrupt:
				s.logger.Warn("purging corrupt stored session",
					zap.String("backend", "redis"),
					zap.String("prefix", s.prefix),
					zap.NamedError("reason", reason))
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, tokenKey, profileKey)
					return nil
				})
				return err
			}
			return nil
		}, tokenKey, profileKey)

		if err == nil {
			return creds, found, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Credentials{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return Credentials{}, false, fmt.Errorf("%w: load contention", ErrStoreUnavailable)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.tokenKey(), s.profileKey()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close is a no-op; the caller closes the Redis client it passed in.
func (s *RedisStore) Close() error { return nil }
