// internal/common/database/redis_test.go
package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &RedisClient{Client: rdb}, mr
}

func TestAcquireLock_FirstHolderWins(t *testing.T) {
	c, _ := newMiniredisClient(t)
	ctx := context.Background()

	ok, err := c.AcquireLock(ctx, "screening:lock:tenant-1:party-1", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "screening:lock:tenant-1:party-1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseLock_OnlyOwnerReleases(t *testing.T) {
	c, mr := newMiniredisClient(t)
	ctx := context.Background()

	_, err := c.AcquireLock(ctx, "screening:lock:tenant-1:party-1", "owner-a", time.Minute)
	require.NoError(t, err)

	// A stale holder must not release the current owner's lock.
	require.NoError(t, c.ReleaseLock(ctx, "screening:lock:tenant-1:party-1", "owner-b"))
	assert.True(t, mr.Exists("screening:lock:tenant-1:party-1"))

	require.NoError(t, c.ReleaseLock(ctx, "screening:lock:tenant-1:party-1", "owner-a"))
	assert.False(t, mr.Exists("screening:lock:tenant-1:party-1"))
}

func TestAcquireLock_ExpiredLockCanBeRetaken(t *testing.T) {
	c, mr := newMiniredisClient(t)
	ctx := context.Background()

	_, err := c.AcquireLock(ctx, "screening:lock:tenant-1:party-1", "owner-a", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	ok, err := c.AcquireLock(ctx, "screening:lock:tenant-1:party-1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireLock_PropagatesRedisError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := &RedisClient{Client: rdb}

	mock.ExpectSetNX("screening:lock:tenant-1:party-1", "owner-a", time.Minute).
		SetErr(redis.ErrClosed)

	_, err := c.AcquireLock(context.Background(), "screening:lock:tenant-1:party-1", "owner-a", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis lock acquire failed")
}
