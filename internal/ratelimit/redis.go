package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// loginBucketScript refills and takes one token atomically.
// KEYS[1] bucket, ARGV rate per second, burst, ttl ms.
// Replies {allowed, retry_after_ms, remaining}.
const loginBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "at")
local tokens = tonumber(state[1]) or burst
local at = tonumber(state[2]) or now
if now > at then
  tokens = math.min(burst, tokens + (now - at) * rate / 1000)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "at", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {allowed, wait, math.floor(tokens)}
`

// unlockScript deletes the lock only while it still carries the caller's token.
const unlockScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

var errBadScriptReply = errors.New("unexpected rate limit script reply")

// redisBucket is the shared login bucket used when several front doors run side by side.
type redisBucket struct {
	client *redis.Client
	take   *redis.Script
	rate   float64
	burst  int
}

func newRedisBucket(client *redis.Client, rate float64, burst int) *redisBucket {
	if client == nil {
		return nil
	}
	return &redisBucket{
		client: client,
		take:   redis.NewScript(loginBucketScript),
		rate:   rate,
		burst:  burst,
	}
}

func (b *redisBucket) allow(ctx context.Context, key string) (*Decision, error) {
	ttl := bucketTTL(b.rate, b.burst)
	reply, err := b.take.Run(ctx, b.client, []string{key}, b.rate, b.burst, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("login bucket %s: %w", key, err)
	}
	return decisionFromReply(reply, b.burst)
}

func decisionFromReply(reply []int64, burst int) (*Decision, error) {
	if len(reply) != 3 {
		return nil, errBadScriptReply
	}
	d := &Decision{
		Allowed:    reply[0] == 1,
		Limit:      burst,
		Remaining:  int(reply[2]),
		RetryAfter: time.Duration(reply[1]) * time.Millisecond,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d, nil
}

// redisLock is a SET NX lease released by compare-and-delete.
type redisLock struct {
	client *redis.Client
	unlock *redis.Script
}

func newRedisLock(client *redis.Client) *redisLock {
	if client == nil {
		return nil
	}
	return &redisLock{client: client, unlock: redis.NewScript(unlockScript)}
}

func (l *redisLock) acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	lease := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, lease, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return lease, true, nil
}

func (l *redisLock) release(ctx context.Context, key, lease string) error {
	if lease == "" {
		return nil
	}
	return l.unlock.Run(ctx, l.client, []string{key}, lease).Err()
}
