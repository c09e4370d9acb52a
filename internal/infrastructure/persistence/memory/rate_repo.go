package memory

import (
	"context"
	"sync"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
)

// RateRepository is an in-memory rate.Repository.
type RateRepository struct {
	mu    sync.RWMutex
	rates map[string]rate.SkillEarningRate
}

// NewRateRepository creates an empty repository.
func NewRateRepository() *RateRepository {
	return &RateRepository{rates: make(map[string]rate.SkillEarningRate)}
}

// UpsertBatch implements rate.Repository. The batch is validated first and
// applied all-or-nothing.
func (r *RateRepository) UpsertBatch(ctx context.Context, rates []rate.SkillEarningRate) (int, error) {
	now := time.Now().UTC()
	normalized := make([]rate.SkillEarningRate, 0, len(rates))
	for _, rt := range rates {
		rt = rt.Normalize()
		if err := rt.Validate(); err != nil {
			return 0, err
		}
		rt.LastUpdated = now
		normalized = append(normalized, rt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range normalized {
		r.rates[rt.Key()] = rt
	}
	return len(normalized), nil
}

// List implements rate.Repository.
func (r *RateRepository) List(ctx context.Context) ([]rate.SkillEarningRate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]rate.SkillEarningRate, 0, len(r.rates))
	for _, rt := range r.rates {
		out = append(out, rt)
	}
	return rate.NewTable(out).All(), nil
}
