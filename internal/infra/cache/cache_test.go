package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetMiss(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "key", []byte("value"), time.Minute))
	v, ok, err := m.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Keys)
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "key", []byte("value"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := m.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "key", []byte("value"), time.Minute))
	require.NoError(t, m.Delete(ctx, "key"))

	_, ok, err := m.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryClearPattern(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "case:1", []byte("a"), time.Minute))
	require.NoError(t, m.Set(ctx, "case:2", []byte("b"), time.Minute))
	require.NoError(t, m.Set(ctx, "team:1", []byte("c"), time.Minute))

	require.NoError(t, m.Clear(ctx, "case:*"))

	_, ok, _ := m.Get(ctx, "case:1")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "case:2")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "team:1")
	assert.True(t, ok)
}

func TestMemoryClearExact(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "exact", []byte("a"), time.Minute))
	require.NoError(t, m.Clear(ctx, "exact"))

	_, ok, _ := m.Get(ctx, "exact")
	assert.False(t, ok)
}

func TestMemoryIdempotencySingleWriter(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	first, err := m.Idempotency(ctx, "op-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := m.Idempotency(ctx, "op-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestMemoryIdempotencyExpiresAndReacquires(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	first, err := m.Idempotency(ctx, "op-1", time.Millisecond)
	require.NoError(t, err)
	assert.True(t, first)

	time.Sleep(5 * time.Millisecond)

	second, err := m.Idempotency(ctx, "op-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, second)
}

func TestMemorySweepEvictsExpired(t *testing.T) {
	m := NewMemory(5 * time.Millisecond)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "key", []byte("value"), time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	m.mu.Lock()
	_, stillPresent := m.entries["key"]
	m.mu.Unlock()
	assert.False(t, stillPresent)
}

func TestGetSetJSON(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}

	_, ok, err := GetJSON[payload](ctx, m, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, m, "key", payload{Name: "alice"}, time.Minute))

	got, ok, err := GetJSON[payload](ctx, m, "key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Name)
}

func TestGetJSONCorruptValueIsTreatedAsMiss(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "key", []byte("not json"), time.Minute))

	type payload struct{ Name string }
	_, ok, err := GetJSON[payload](ctx, m, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}
