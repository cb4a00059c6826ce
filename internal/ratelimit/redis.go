package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	internalsettings "github.com/liurenlab/oracleops/internal/settings"
)

// Window keys live two seconds so a straggling INCR after the window
// boundary still expires.
const redisWindowTTLSeconds = 2

// redisWindowScript increments the per-second counter and stamps the TTL
// on first touch, atomically.
var redisWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return hits
`)

// RedisLimiter is a fixed-window rate limiter whose counters are shared
// through Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter. A blank prefix falls back to
// the settings default so client keys stay namespaced under a shared Redis.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

// Allow checks whether the request fits the current one-second window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error) {
	if l == nil || l.client == nil || key == "" || limit <= 0 {
		return Result{Allowed: true}, nil
	}

	window := now.Unix()
	raw, errRun := redisWindowScript.Run(ctx, l.client,
		[]string{l.windowKey(key, window)}, redisWindowTTLSeconds).Result()
	if errRun != nil {
		return Result{}, errRun
	}
	hits, errHits := scriptCount(raw)
	if errHits != nil {
		return Result{}, errHits
	}

	reset := time.Unix(window+1, 0).UTC()
	if hits > int64(limit) {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	remaining := limit - int(hits)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, Reset: reset}, nil
}

// windowKey scopes one client key to one second-aligned window.
func (l *RedisLimiter) windowKey(key string, window int64) string {
	return l.prefix + ":" + key + ":" + strconv.FormatInt(window, 10)
}

// scriptCount normalizes the integer reply types go-redis returns for an
// eval result.
func scriptCount(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("rate limit redis: unexpected script reply %T", raw)
	}
}
