package cache

import (
	"context"
	"testing"
	"time"

	"example.com/flightguild/bot/config"

	"github.com/stretchr/testify/require"
)

func TestDisabledCacheMisses(t *testing.T) {
	c, err := NewRedisCache(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	require.False(t, c.Enabled())

	var out string
	require.ErrorIs(t, c.Get(context.Background(), "k", &out), ErrMiss)
	require.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))
	require.NoError(t, c.Close())
}

func TestNilCacheIsDisabled(t *testing.T) {
	var c *RedisCache
	require.False(t, c.Enabled())
}

func TestKeys(t *testing.T) {
	require.Equal(t, "netstatus:g1:snapshot", NetStatusSnapshotKey("g1"))
	require.Equal(t, "netstatus:g1:board", NetStatusBoardKey("g1"))
}
