// Package ratelimit provides a Redis-backed fixed-window rate limiter used
// to slow down credential guessing on the login endpoint.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter bounds how often a key may be used within a window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
	Reset(ctx context.Context, key string) error
}

// allowScript increments the window counter and sets its expiry atomically.
// KEYS[1] = counter key, ARGV[1] = window in milliseconds. Returns the new
// count and the remaining window in milliseconds.
var allowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisLimiter implements Limiter with a fixed window per key.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter. Keys are stored under the given prefix.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

// Allow consumes one unit for key and reports whether the caller is within
// limit for the current window. Redis failures are returned to the caller,
// which decides whether to fail open or closed.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	redisKey := l.prefix + ":" + key

	res, err := allowScript.Run(ctx, l.client, []string{redisKey}, window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed for %s: %w", key, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return Decision{}, fmt.Errorf("rate limit check failed for %s: unexpected script reply %v", key, res)
	}
	count, _ := vals[0].(int64)
	ttlMillis, _ := vals[1].(int64)

	d := Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: limit - int(count),
		ResetAt:   l.now().Add(time.Duration(ttlMillis) * time.Millisecond),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d, nil
}

// Reset clears the window for key, for use after a successful login.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("rate limit reset failed for %s: %w", key, err)
	}
	return nil
}
