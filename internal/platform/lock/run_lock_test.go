package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance for testing.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewRunLock(t *testing.T) {
	t.Parallel()

	client, _ := setupTestRedis(t)

	assert.Equal(t, "runlock", NewRunLock(client, "").prefix)
	assert.Equal(t, "timeframes", NewRunLock(client, "timeframes").prefix)
}

func TestRunLock_AcquireRelease(t *testing.T) {
	t.Parallel()

	client, mr := setupTestRedis(t)
	l := NewRunLock(client, "timeframes")
	l.now = func() time.Time { return time.Date(2025, 9, 6, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	h, err := l.Acquire(ctx, "daily", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, h.Token)
	assert.True(t, mr.Exists("timeframes:daily"))
	assert.Equal(t, time.Hour, mr.TTL("timeframes:daily"))

	cur, err := l.Current(ctx, "daily")
	require.NoError(t, err)
	assert.Equal(t, h.Token, cur.Token)
	assert.Equal(t, "daily", cur.Op)
	assert.True(t, cur.StartedAt.Equal(l.now()))

	require.NoError(t, l.Release(ctx, h))
	assert.False(t, mr.Exists("timeframes:daily"))

	_, err = l.Current(ctx, "daily")
	assert.ErrorIs(t, err, ErrNotHeld)
}

func TestRunLock_AcquireWhileHeld(t *testing.T) {
	t.Parallel()

	client, _ := setupTestRedis(t)
	l := NewRunLock(client, "timeframes")
	ctx := context.Background()

	first, err := l.Acquire(ctx, "daily", time.Hour)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "daily", time.Hour)
	require.ErrorIs(t, err, ErrHeld)
	assert.Contains(t, err.Error(), "daily")

	// 別の op は独立している
	other, err := l.Acquire(ctx, "rebuild", time.Hour)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, first))
	require.NoError(t, l.Release(ctx, other))
}

func TestRunLock_ReleaseAfterExpiry(t *testing.T) {
	t.Parallel()

	client, mr := setupTestRedis(t)
	l := NewRunLock(client, "timeframes")
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "daily", time.Minute)
	require.NoError(t, err)

	// 期限切れ後に別のプロセスが取り直す
	mr.FastForward(2 * time.Minute)
	fresh, err := l.Acquire(ctx, "daily", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, l.Release(ctx, stale), ErrNotHeld)
	assert.True(t, mr.Exists("timeframes:daily"), "the new holder's lock survives")

	require.NoError(t, l.Release(ctx, fresh))
}

func TestRunLock_Current_Corrupted(t *testing.T) {
	t.Parallel()

	client, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("timeframes:daily", "not json"))

	_, err := NewRunLock(client, "timeframes").Current(context.Background(), "daily")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal lock holder")
}
