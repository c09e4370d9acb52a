package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/persistence/memory"
)

type fakeRateCache struct {
	mu     sync.Mutex
	rates  []rate.SkillEarningRate
	stores int
	down   bool
}

func (c *fakeRateCache) Load(context.Context) ([]rate.SkillEarningRate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down || c.rates == nil {
		return nil, errors.New("miss")
	}
	return c.rates, nil
}

func (c *fakeRateCache) Store(_ context.Context, rates []rate.SkillEarningRate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errors.New("down")
	}
	c.rates = rates
	c.stores++
	return nil
}

func (c *fakeRateCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = nil
	return nil
}

func TestRateTableService_LoadsRepositoryAndFillsCache(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRateRepository()
	_, err := repo.UpsertBatch(ctx, []rate.SkillEarningRate{{SkillName: "Go", BaseRate: 30}})
	require.NoError(t, err)

	cache := &fakeRateCache{}
	svc := NewRateTableService(repo, cache, nil)

	table, err := svc.Current(ctx)
	require.NoError(t, err)
	base, err := table.BaseRateFor("go")
	require.NoError(t, err)
	assert.Equal(t, 30, base)
	assert.Equal(t, 1, cache.stores)

	// Snapshot is stable until Refresh.
	_, err = repo.UpsertBatch(ctx, []rate.SkillEarningRate{{SkillName: "Go", BaseRate: 45}})
	require.NoError(t, err)
	same, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Same(t, table, same)

	require.NoError(t, svc.Refresh(ctx))
	fresh, err := svc.Current(ctx)
	require.NoError(t, err)
	base, _ = fresh.BaseRateFor("Go")
	assert.Equal(t, 45, base)
	assert.Equal(t, 2, cache.stores)
}

func TestRateTableService_PrefersCacheOnColdStart(t *testing.T) {
	cache := &fakeRateCache{rates: []rate.SkillEarningRate{{SkillName: "Piano", BaseRate: 25, DemandMultiplier: 1, DifficultyMultiplier: 1}}}
	svc := NewRateTableService(memory.NewRateRepository(), cache, nil)

	table, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, 0, cache.stores)
}

func TestRateTableService_CacheDownFallsBack(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRateRepository()
	svc := NewRateTableService(repo, &fakeRateCache{down: true}, nil)

	n, err := svc.SeedIfEmpty(ctx, []rate.SkillEarningRate{{SkillName: "Go", BaseRate: 30}, {SkillName: "SQL", BaseRate: 24}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.SeedIfEmpty(ctx, []rate.SkillEarningRate{{SkillName: "Chess", BaseRate: 10}})
	require.NoError(t, err)
	assert.Zero(t, n)

	table, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	_, ok := table.Lookup("Chess")
	assert.False(t, ok)
}
