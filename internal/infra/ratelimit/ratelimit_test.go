package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAllowWithinLimit(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "key", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "call %d should be allowed", i)
	}

	ok, err := m.Allow(ctx, "key", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "4th call should be denied")
}

func TestMemoryAllowResetsAfterWindow(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	ok, err := m.Allow(ctx, "key", 1, 5*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Allow(ctx, "key", 1, 5*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(10 * time.Millisecond)

	ok, err = m.Allow(ctx, "key", 1, 5*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "window should have reset")
}

func TestMemoryAllowIndependentKeys(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	ok, err := m.Allow(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Allow(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "separate key should have its own window")
}

func TestMemoryEvictStaleRemovesOldWindows(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	_, err := m.Allow(ctx, "key", 1, time.Nanosecond)
	require.NoError(t, err)

	m.mu.Lock()
	m.windows["key"].expiresAt = time.Now().Add(-staleThreshold - time.Second)
	m.mu.Unlock()

	m.evictStale()

	m.mu.Lock()
	_, present := m.windows["key"]
	m.mu.Unlock()
	assert.False(t, present)
}
