package queue

import (
	"container/heap"
	"context"
	"sync"
)

type item struct {
	job   JSONMap
	score float64
	seq   uint64
}

// itemHeap is a max-heap on score so Pop always returns the highest
// priority, earliest-enqueued item.
type itemHeap []item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)         { *h = append(*h, x.(item)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	last := old[n-1]
	*h = old[:n-1]
	return last
}

// Memory is an in-process priority queue, one heap per named queue. It
// is the default backend when Redis is not configured and is used
// throughout the test suite for deterministic ordering.
type Memory struct {
	mu     sync.Mutex
	queues map[string]*itemHeap
	seq    uint64
}

func NewMemory() *Memory {
	return &Memory{queues: make(map[string]*itemHeap)}
}

func (m *Memory) Enqueue(_ context.Context, queue string, job JSONMap, priority int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.queues[queue]
	if !ok {
		h = &itemHeap{}
		heap.Init(h)
		m.queues[queue] = h
	}
	m.seq++
	heap.Push(h, item{job: job, score: orderingKey(priority, m.seq), seq: m.seq})
	return nil
}

func (m *Memory) Dequeue(_ context.Context, queue string) (JSONMap, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.queues[queue]
	if !ok || h.Len() == 0 {
		return nil, false, nil
	}
	it := heap.Pop(h).(item)
	return it.job, true, nil
}

func (m *Memory) Length(_ context.Context, queue string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.queues[queue]
	if !ok {
		return 0, nil
	}
	return h.Len(), nil
}

func (m *Memory) Close() error { return nil }
