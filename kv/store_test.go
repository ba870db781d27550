package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInProcessCacheSetGet(t *testing.T) {
	c := NewInProcessCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestInProcessCacheGetMissing(t *testing.T) {
	c := NewInProcessCache()
	_, err := c.Get(context.Background(), "missing")
	require.Error(t, err)
}

func TestInProcessCacheExpiry(t *testing.T) {
	c := NewInProcessCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	require.Error(t, err)
}

func TestInProcessCacheDelete(t *testing.T) {
	c := NewInProcessCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	require.Error(t, err)
}

func TestInProcessCacheZeroTTLUsesDefault(t *testing.T) {
	c := NewInProcessCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

var _ Cache = (*InProcessCache)(nil)
var _ Cache = (*RedisCache)(nil)
