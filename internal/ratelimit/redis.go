package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/charlesng35/tradepost/internal/cache"
)

// allowScript prunes, counts and conditionally records an attempt in one round trip.
// KEYS[1] sorted set; ARGV: now (ms), window (ms), max attempts, member.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisLimiter shares attempt windows across processes through Redis sorted sets scored by
// millisecond timestamps.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	clock  Clock
}

// NewRedisLimiter wraps a Redis client.
func NewRedisLimiter(client redis.UniversalClient, clock Clock) *RedisLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &RedisLimiter{
		client: client,
		prefix: cache.KeyPrefix + "ratelimit:",
		clock:  clock,
	}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, error) {
	if maxAttempts <= 0 || window <= 0 {
		return true, nil
	}

	now := l.clock().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	res, err := allowScript.Run(ctx, l.client, []string{l.prefix + key}, now, window.Milliseconds(), maxAttempts, member).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: allow %s: %w", key, err)
	}
	return res == 1, nil
}

// RemainingTime implements Limiter.
func (l *RedisLimiter) RemainingTime(ctx context.Context, key string, window time.Duration) (time.Duration, error) {
	now := l.clock()
	// Scores are inclusive; a stamp exactly one window old is already expired.
	minScore := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	oldest, err := l.client.ZRangeByScoreWithScores(ctx, l.prefix+key, &redis.ZRangeBy{
		Min:   minScore,
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: remaining %s: %w", key, err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	return remaining(time.UnixMilli(int64(oldest[0].Score)), window, now), nil
}
