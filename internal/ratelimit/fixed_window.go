// Package ratelimit provides the Redis-backed fixed-window limiter used to
// throttle auth attempts and summary generation per client.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript increments the window counter and answers the quota question
// in one round trip. The expiry is set when the counter is created so a
// window cannot outlive itself.
var allowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if n > tonumber(ARGV[2]) then
  return 0
end
return 1
`)

// FixedWindowLimiter counts requests per key in fixed windows shared across
// server replicas through Redis.
type FixedWindowLimiter struct {
	limit  int64
	window time.Duration
	prefix string
	rdb    *redis.Client
}

// NewRedisFixedWindowLimiter connects a limiter to Redis. Every replica
// pointing at the same Redis and prefix shares one quota.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("ratelimit: limit and window must be positive")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("ratelimit: redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "clinsum:ratelimit"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	return &FixedWindowLimiter{
		limit:  int64(limit),
		window: window,
		prefix: prefix,
		rdb:    rdb,
	}, nil
}

// Allow reports whether the key still has quota in the current window.
// When Redis is unreachable it denies: auth and model-call endpoints must
// not run unthrottled.
func (l *FixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := allowScript.Run(ctx, l.rdb, []string{l.windowKey(key)}, l.window.Milliseconds(), l.limit).Int64()
	if err != nil {
		slog.Warn("ratelimit_unavailable", "key", key, "error", err)
		return false
	}
	return res == 1
}

// windowKey buckets a key by the window containing now.
func (l *FixedWindowLimiter) windowKey(key string) string {
	bucket := time.Now().UTC().Truncate(l.window).UnixMilli()
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)
}
