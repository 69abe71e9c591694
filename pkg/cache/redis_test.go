package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis tests")
	}

	c, err := NewRedisCache(&Options{
		Backend:       BackendRedis,
		RedisAddr:     addr,
		RedisPassword: os.Getenv("REDIS_TEST_PASSWORD"),
		DefaultTTL:    time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCache_SetGet(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "heatnet-test:key", []byte("value"), time.Minute))
	t.Cleanup(func() { _ = c.Delete(ctx, "heatnet-test:key") })

	val, err := c.Get(ctx, "heatnet-test:key")
	require.NoError(t, err)
	assert.Equal(t, "value", string(val))

	ok, err := c.Exists(ctx, "heatnet-test:key")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.Get(ctx, "heatnet-test:missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisCache_DeleteByPrefix(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	prefix := FlowPrefix("heatnet-test")
	for _, d := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, FlowKey("heatnet-test", d), []byte("x"), time.Minute))
	}

	n, err := c.DeleteByPrefix(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRedisCache_FlowCache(t *testing.T) {
	c := newTestRedisCache(t)
	fc := NewFlowCache(c, time.Minute)
	ctx := context.Background()

	key := FlowKey("heatnet-test", "flow")
	require.NoError(t, fc.Set(ctx, key, sampleFlow(), 0))
	t.Cleanup(func() { _ = c.Delete(ctx, key) })

	got, ok, err := fc.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, got.Snapshots)
}

func TestInfoFields(t *testing.T) {
	info := "# Stats\r\nkeyspace_hits:12\r\nkeyspace_misses:3\r\nused_memory_human:1.02M\r\nused_memory:1069840\r\n\r\n"

	f := infoFields(info)
	assert.Equal(t, int64(12), f["keyspace_hits"])
	assert.Equal(t, int64(3), f["keyspace_misses"])
	assert.Equal(t, int64(1069840), f["used_memory"])
	assert.NotContains(t, f, "used_memory_human")
	assert.NotContains(t, f, "# Stats")
}
