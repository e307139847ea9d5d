package session

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "kasira:session:"

// RedisStore keeps each session in a hash with a sliding expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(sid string) string {
	return redisKeyPrefix + storageKey(sid)
}

func (s *RedisStore) Get(ctx context.Context, sid, key string) (string, bool, error) {
	if sid == "" {
		return "", false, ErrEmptySessionID
	}
	value, err := s.client.HGet(ctx, s.key(sid), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, sid, key, value string) error {
	if sid == "" {
		return ErrEmptySessionID
	}
	k := s.key(sid)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, key, value)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, sid string, keys ...string) error {
	if sid == "" {
		return ErrEmptySessionID
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.HDel(ctx, s.key(sid), keys...).Err()
}

func (s *RedisStore) Destroy(ctx context.Context, sid string) error {
	if sid == "" {
		return ErrEmptySessionID
	}
	return s.client.Del(ctx, s.key(sid)).Err()
}
