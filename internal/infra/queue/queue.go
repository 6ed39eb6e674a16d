// Package queue provides priority-ordered job queues for work the
// orchestrator hands off rather than executes inline (e.g. deferred
// compliance re-checks, audit batch-proof generation).
package queue

import "context"

// JSONMap is a job payload: small, self-describing, safe to serialize
// for either backend.
type JSONMap map[string]any

// Queue is the contract every backend implements. Higher priority values
// are dequeued first; equal priorities are FIFO.
type Queue interface {
	Enqueue(ctx context.Context, queue string, job JSONMap, priority int) error
	Dequeue(ctx context.Context, queue string) (JSONMap, bool, error)
	Length(ctx context.Context, queue string) (int, error)
	Close() error
}

// orderingKey combines priority and a monotonic sequence number into a
// single score: higher priority sorts first, and within a priority,
// lower sequence (earlier enqueue) sorts first. 1e13 comfortably
// outscales any realistic sequence counter so priority always wins the
// comparison first.
func orderingKey(priority int, seq uint64) float64 {
	return float64(priority)*1e13 - float64(seq)
}
