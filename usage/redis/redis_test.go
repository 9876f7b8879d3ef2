package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/usage"
	usageredis "github.com/xraph/tally/usage/redis"
)

func setupStore(t *testing.T, opts ...usageredis.Option) (*usageredis.Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return usageredis.New(client, opts...), mr
}

func TestIncrementStopsAtLimit(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	biz := id.NewBusinessID()

	for want := int64(1); want <= 3; want++ {
		count, ok, err := s.IncrementUsage(ctx, biz, "2025-03", 3)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, count)
	}

	count, ok, err := s.IncrementUsage(ctx, biz, "2025-03", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(3), count)

	// A new month starts from zero.
	count, ok, err = s.IncrementUsage(ctx, biz, "2025-04", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), count)
}

func TestIncrementUnlimited(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	biz := id.NewBusinessID()

	for range 10 {
		_, ok, err := s.IncrementUsage(ctx, biz, "2025-03", usage.Unlimited)
		require.NoError(t, err)
		require.True(t, ok)
	}
	got, err := s.GetUsage(ctx, biz, "2025-03")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	biz := id.NewBusinessID()

	require.NoError(t, s.ReleaseUsage(ctx, biz, "2025-03"))
	got, err := s.GetUsage(ctx, biz, "2025-03")
	require.NoError(t, err)
	assert.Zero(t, got)

	_, _, err = s.IncrementUsage(ctx, biz, "2025-03", 3)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseUsage(ctx, biz, "2025-03"))
	require.NoError(t, s.ReleaseUsage(ctx, biz, "2025-03"))

	got, err = s.GetUsage(ctx, biz, "2025-03")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestConcurrentReservationsRespectLimit(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	biz := id.NewBusinessID()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.IncrementUsage(ctx, biz, "2025-03", 3)
			if err == nil && ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
}

func TestCounterKeysExpire(t *testing.T) {
	s, mr := setupStore(t, usageredis.WithPrefix("test"), usageredis.WithRetention(time.Hour))
	ctx := context.Background()
	biz := id.NewBusinessID()

	_, _, err := s.IncrementUsage(ctx, biz, "2025-03", 3)
	require.NoError(t, err)

	key := "test:" + biz.String() + ":2025-03"
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(2 * time.Hour)
	got, err := s.GetUsage(ctx, biz, "2025-03")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestGateOverRedis(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	biz := id.NewBusinessID()
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	gate := usage.NewGate(s, usage.DefaultLimits())
	for range 3 {
		_, ok, err := gate.Reserve(ctx, biz, business.TierFree, now)
		require.NoError(t, err)
		require.True(t, ok)
	}
	snap, ok, err := gate.Reserve(ctx, biz, business.TierFree, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, snap.CanSend)

	_, ok, err = gate.Reserve(ctx, biz, business.TierPro, now)
	require.NoError(t, err)
	assert.True(t, ok)
}
