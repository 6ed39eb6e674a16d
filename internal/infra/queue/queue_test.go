package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDequeueOrdersByPriorityThenFIFO(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "cases", JSONMap{"id": "low-1"}, 1))
	require.NoError(t, q.Enqueue(ctx, "cases", JSONMap{"id": "high-1"}, 10))
	require.NoError(t, q.Enqueue(ctx, "cases", JSONMap{"id": "low-2"}, 1))
	require.NoError(t, q.Enqueue(ctx, "cases", JSONMap{"id": "high-2"}, 10))

	var order []string
	for {
		job, ok, err := q.Dequeue(ctx, "cases")
		require.NoError(t, err)
		if !ok {
			break
		}
		order = append(order, job["id"].(string))
	}

	assert.Equal(t, []string{"high-1", "high-2", "low-1", "low-2"}, order)
}

func TestMemoryDequeueEmpty(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	_, ok, err := q.Dequeue(ctx, "empty")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLength(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	n, err := q.Length(ctx, "cases")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, q.Enqueue(ctx, "cases", JSONMap{"id": "a"}, 0))
	require.NoError(t, q.Enqueue(ctx, "cases", JSONMap{"id": "b"}, 0))

	n, err = q.Length(ctx, "cases")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryQueuesAreIndependent(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "a", JSONMap{"id": "1"}, 0))

	n, err := q.Length(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOrderingKeyPriorityDominatesSequence(t *testing.T) {
	lowPriorityEarly := orderingKey(1, 1)
	highPriorityLate := orderingKey(2, 1_000_000)
	assert.Greater(t, highPriorityLate, lowPriorityEarly)
}
