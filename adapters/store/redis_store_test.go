package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/portal/core"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisCredentialStore(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := NewRedisCredentialStore(rdb, "jwt")

	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, core.ErrNoCredential)

	require.NoError(t, s.Set(ctx, "abc"))
	got, err := mr.Get("portal:credential:jwt")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	token, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
	assert.False(t, mr.Exists("portal:credential:jwt"))
}

func TestRedisRevocationStore(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := NewRedisRevocationStore(rdb)

	invalidated, err := s.IsTokenInvalidated(ctx, "rid-1")
	require.NoError(t, err)
	assert.False(t, invalidated)

	require.NoError(t, s.InvalidateToken(ctx, "rid-1", time.Minute))
	invalidated, err = s.IsTokenInvalidated(ctx, "rid-1")
	require.NoError(t, err)
	assert.True(t, invalidated)

	mr.FastForward(2 * time.Minute)
	invalidated, err = s.IsTokenInvalidated(ctx, "rid-1")
	require.NoError(t, err)
	assert.False(t, invalidated)
}
