package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments the key, starts its expiry on the first hit and
// returns {count, pttl}. A key that somehow lost its TTL gets one again,
// so a window can never become permanent.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounter keeps windows in Redis so every server instance shares them.
type RedisCounter struct {
	rdb    redis.Scripter
	prefix string
}

// NewRedisCounter stores keys under prefix (for example "accounts:rl:").
func NewRedisCounter(rdb redis.Scripter, prefix string) *RedisCounter {
	return &RedisCounter{rdb: rdb, prefix: prefix}
}

func (c *RedisCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	vals, err := incrScript.Run(ctx, c.rdb, []string{c.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit: incrementing %s: %w", key, err)
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("ratelimit: unexpected script reply %v", vals)
	}
	return vals[0], time.Duration(vals[1]) * time.Millisecond, nil
}
