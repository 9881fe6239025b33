package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testActivityCache(t *testing.T) (*ActivityCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewActivityCache(client, time.Minute), mr
}

func countingLoader(adjustments []Adjustment) (func(context.Context) ([]Adjustment, error), *int) {
	calls := 0
	return func(context.Context) ([]Adjustment, error) {
		calls++
		return adjustments, nil
	}, &calls
}

func TestActivityCacheServesSecondReadFromRedis(t *testing.T) {
	cache, _ := testActivityCache(t)
	load, calls := countingLoader([]Adjustment{
		{ID: 1, ItemID: 7, Delta: -30, Type: AdjustmentConsumption, CreatedBy: 3},
	})

	first, err := cache.Get(context.Background(), load)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, *calls)

	second, err := cache.Get(context.Background(), load)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, *calls)
}

func TestActivityCacheReloadsAfterInvalidate(t *testing.T) {
	cache, _ := testActivityCache(t)
	load, calls := countingLoader([]Adjustment{{ID: 2, ItemID: 4, Delta: 500}})

	_, err := cache.Get(context.Background(), load)
	require.NoError(t, err)
	cache.Invalidate(context.Background())

	_, err = cache.Get(context.Background(), load)
	require.NoError(t, err)
	require.Equal(t, 2, *calls)
}

func TestActivityCacheReloadsAfterExpiry(t *testing.T) {
	cache, mr := testActivityCache(t)
	load, calls := countingLoader([]Adjustment{{ID: 3, ItemID: 4, Delta: 80}})

	_, err := cache.Get(context.Background(), load)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = cache.Get(context.Background(), load)
	require.NoError(t, err)
	require.Equal(t, 2, *calls)
}

func TestActivityCacheDegradesWithoutRedis(t *testing.T) {
	load, calls := countingLoader([]Adjustment{{ID: 4, ItemID: 9, Delta: 12}})
	var cache *ActivityCache

	got, err := cache.Get(context.Background(), load)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, *calls)
}
