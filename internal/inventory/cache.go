package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const activityCacheKey = "kiln:inventory:recent_adjustments"

// ActivityCache keeps a short-lived snapshot of recent ledger entries in
// Redis so dashboard polling does not hammer the adjustments table. A
// singleflight group collapses concurrent rebuilds into one query.
type ActivityCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewActivityCache constructs the cache. TTL values at or below zero fall
// back to thirty seconds.
func NewActivityCache(client *redis.Client, ttl time.Duration) *ActivityCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ActivityCache{client: client, ttl: ttl}
}

// Get returns the cached snapshot, rebuilding it through load on a miss.
// Cache failures degrade to a direct load.
func (c *ActivityCache) Get(ctx context.Context, load func(context.Context) ([]Adjustment, error)) ([]Adjustment, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	payload, err := c.client.Get(ctx, activityCacheKey).Bytes()
	if err == nil {
		var cached []Adjustment
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return load(ctx)
	}

	value, err, _ := c.group.Do(activityCacheKey, func() (any, error) {
		fresh, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(fresh); err == nil {
			_ = c.client.Set(ctx, activityCacheKey, payload, c.ttl).Err()
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Adjustment), nil
}

// Invalidate drops the snapshot. Called after ledger writes by callers that
// want the next read to be fresh; the TTL bounds staleness otherwise.
func (c *ActivityCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, activityCacheKey).Err()
}
