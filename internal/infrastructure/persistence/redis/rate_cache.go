package redis

import (
	"context"
	"errors"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/pkg/circuitbreaker"
)

// rateSnapshot is the cached form of the earning-rate table.
type rateSnapshot struct {
	Rates    []rate.SkillEarningRate `json:"rates"`
	CachedAt time.Time               `json:"cached_at"`
}

// RateCache stores the earning-rate table in Redis.
// Every call goes through a circuit breaker; an open breaker reads as a miss
// so callers fall back to the repository.
type RateCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
	ttl     time.Duration
}

// NewRateCache creates a RateCache. A nil breaker gets the default cache preset.
func NewRateCache(cache *Cache, breaker *circuitbreaker.CircuitBreaker) *RateCache {
	if breaker == nil {
		breaker = circuitbreaker.CacheBreaker("redis-rates", nil)
	}
	return &RateCache{cache: cache, breaker: breaker, ttl: TTLRateTable}
}

// Load returns the cached rates. ErrCacheMiss covers both an absent key and
// an unavailable Redis.
func (c *RateCache) Load(ctx context.Context) ([]rate.SkillEarningRate, error) {
	var snap rateSnapshot
	hit := false
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		err := c.cache.Get(ctx, RateTableKey(), &snap)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		if err != nil {
			return err
		}
		hit = true
		return nil
	})
	if err != nil || !hit {
		return nil, ErrCacheMiss
	}
	return snap.Rates, nil
}

// Store replaces the cached rates.
func (c *RateCache) Store(ctx context.Context, rates []rate.SkillEarningRate) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, RateTableKey(), rateSnapshot{Rates: rates, CachedAt: time.Now().UTC()}, c.ttl)
	})
}

// Invalidate drops the cached rates.
func (c *RateCache) Invalidate(ctx context.Context) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Delete(ctx, RateTableKey())
	})
}

// BreakerState reports the breaker state for readiness output.
func (c *RateCache) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}
