package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

const queueKeyPrefix = "triagecore:queue:"

// Redis is a Queue backed by one sorted set per named queue, scored by
// orderingKey so ZPOPMAX always returns the highest priority,
// earliest-enqueued job.
type Redis struct {
	client *redis.Client
	seq    atomic.Uint64
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) key(queue string) string {
	return queueKeyPrefix + queue
}

func (r *Redis) Enqueue(ctx context.Context, queue string, job JSONMap, priority int) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	seq := r.seq.Add(1)
	return r.client.ZAdd(ctx, r.key(queue), redis.Z{
		Score:  orderingKey(priority, seq),
		Member: raw,
	}).Err()
}

func (r *Redis) Dequeue(ctx context.Context, queue string) (JSONMap, bool, error) {
	res, err := r.client.ZPopMax(ctx, r.key(queue), 1).Result()
	if err != nil {
		return nil, false, err
	}
	if len(res) == 0 {
		return nil, false, nil
	}
	raw, ok := res[0].Member.(string)
	if !ok {
		return nil, false, nil
	}
	var job JSONMap
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (r *Redis) Length(ctx context.Context, queue string) (int, error) {
	n, err := r.client.ZCard(ctx, r.key(queue)).Result()
	return int(n), err
}

func (r *Redis) Close() error {
	return r.client.Close()
}
