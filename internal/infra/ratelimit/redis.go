package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript atomically increments a counter and sets its
// expiry only on the first increment of a window, so the window's
// lifetime is pinned to the first call rather than extended by every
// subsequent one.
//
// KEYS[1] = window key
// ARGV[1] = window size in seconds
//
// Returns the count after increment.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// Redis implements fixed-window rate limiting backed by a shared Redis
// instance, using a single atomic Lua script per check rather than a
// separate INCR+EXPIRE round trip that would race under concurrent
// callers.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := fmt.Sprintf("triagecore:rl:%s", key)
	seconds := int(window.Seconds())
	if seconds <= 0 {
		seconds = 1
	}

	count, err := fixedWindowScript.Run(ctx, r.client, []string{redisKey}, seconds).Int64()
	if err != nil {
		return false, err
	}
	return int(count) <= limit, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
