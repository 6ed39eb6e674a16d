package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key this package writes so Clear("*")
// doesn't wander into unrelated keys sharing the same Redis instance.
const keyPrefix = "triagecore:cache:"

// Redis is a Cache backed by a shared Redis instance, for deployments that
// run more than one orchestrator process against the same case stream.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client. The caller owns connection lifecycle
// up to Close.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) key(k string) string {
	return keyPrefix + k
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Clear scans for keys matching pattern and deletes them in batches. It
// never fails just because nothing matched.
func (r *Redis) Clear(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, r.key(pattern), 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 200 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Stats reports DBSize for Keys, which counts every key in the Redis
// database, not only this package's; Hits/Misses aren't tracked locally since
// Redis INFO commandstats would require elevated permissions many
// deployments don't grant the application user.
func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	n, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Keys: n}, nil
}

// Idempotency uses SET NX EX, which is itself atomic: exactly one caller
// across the whole cluster observes true for a given key within ttl.
func (r *Redis) Idempotency(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key("idemp:"+key), "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
