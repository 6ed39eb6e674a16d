package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type entry struct {
	value    []byte
	deadline time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// Memory is an in-process Cache backed by a mutex-guarded map, with a
// background goroutine that evicts expired entries so memory doesn't grow
// unbounded from keys nobody reads again.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry

	hits   atomic.Int64
	misses atomic.Int64

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemory creates an in-process cache with a background sweep every
// evictInterval.
func NewMemory(evictInterval time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go m.sweep(evictInterval)
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.expired(time.Now()) {
		m.misses.Add(1)
		return nil, false, nil
	}
	m.hits.Add(1)
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deadline time.Time
	if ttl > 0 {
		deadline = time.Now().Add(ttl)
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = entry{value: v, deadline: deadline}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Clear(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix, suffix, isGlob := strings.Cut(pattern, "*")
	for key := range m.entries {
		if !isGlob {
			if key == pattern {
				delete(m.entries, key)
			}
			continue
		}
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	keys := int64(len(m.entries))
	m.mu.Unlock()
	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load(), Keys: keys}, nil
}

// Idempotency implements the single-writer guard directly against the
// entries map: acquiring is just a Set that only succeeds once per ttl.
func (m *Memory) Idempotency(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if e, ok := m.entries[key]; ok && !e.expired(now) {
		return false, nil
	}
	m.entries[key] = entry{value: []byte("1"), deadline: now.Add(ttl)}
	return true, nil
}

func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *Memory) sweep(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *Memory) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
		}
	}
}
