package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NicolasHaas/gochat/pkg/model"
)

const redisKeyPrefix = "gochat:session"

// RedisStore keeps sessions in Redis so several front-end processes can
// share them. Values are JSON encoded and expire after an idle TTL.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. A non-positive ttl selects DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{redis: client, prefix: redisKeyPrefix, ttl: ttl}
}

func (s *RedisStore) key(sessionKey string) string {
	return s.prefix + ":" + sessionKey
}

// Load reads the session stored under key and extends its TTL.
func (s *RedisStore) Load(ctx context.Context, key string) (*model.Session, error) {
	raw, err := s.redis.GetEx(ctx, s.key(key), s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sess model.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// A corrupt record is treated as absent so the caller starts fresh.
		return nil, nil
	}
	sess.Key = key
	return &sess, nil
}

// Save writes sess under its key with a fresh TTL.
func (s *RedisStore) Save(ctx context.Context, sess *model.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(sess.Key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes the session stored under key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
