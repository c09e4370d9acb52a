package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
)

// RateCacheStore is the optional shared cache in front of the repository.
// redis.RateCache implements it.
type RateCacheStore interface {
	Load(ctx context.Context) ([]rate.SkillEarningRate, error)
	Store(ctx context.Context, rates []rate.SkillEarningRate) error
	Invalidate(ctx context.Context) error
}

// RateTableService holds the current earning-rate snapshot.
// Readers get an immutable *rate.Table; Refresh swaps it atomically.
type RateTableService struct {
	repo    rate.Repository
	cache   RateCacheStore
	logger  *slog.Logger
	current atomic.Pointer[rate.Table]
	loadMu  sync.Mutex
}

// NewRateTableService creates a new RateTableService. cache may be nil.
func NewRateTableService(repo rate.Repository, cache RateCacheStore, logger *slog.Logger) *RateTableService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateTableService{
		repo:   repo,
		cache:  cache,
		logger: logger.With("component", "rate_table"),
	}
}

// Current implements rate.Source. The first call loads the table:
// shared cache first, then the repository.
func (s *RateTableService) Current(ctx context.Context) (*rate.Table, error) {
	if t := s.current.Load(); t != nil {
		return t, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if t := s.current.Load(); t != nil {
		return t, nil
	}

	if s.cache != nil {
		if rates, err := s.cache.Load(ctx); err == nil {
			t := rate.NewTable(rates)
			s.current.Store(t)
			s.logger.Debug("rate table loaded from cache", "rates", t.Len())
			return t, nil
		}
	}
	return s.reload(ctx)
}

// Refresh implements command.RateRefresher. It always reads the repository
// and overwrites the shared cache.
func (s *RateTableService) Refresh(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	_, err := s.reload(ctx)
	return err
}

func (s *RateTableService) reload(ctx context.Context) (*rate.Table, error) {
	rates, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	t := rate.NewTable(rates)
	s.current.Store(t)

	if s.cache != nil {
		if err := s.cache.Store(ctx, rates); err != nil {
			s.logger.Warn("failed to cache rate table", "error", err)
		}
	}
	s.logger.Info("rate table refreshed", "rates", t.Len())
	return t, nil
}

// SeedIfEmpty upserts seeds when the repository holds no rates.
// Returns the number of seeded entries.
func (s *RateTableService) SeedIfEmpty(ctx context.Context, seeds []rate.SkillEarningRate) (int, error) {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 || len(seeds) == 0 {
		return 0, nil
	}
	n, err := s.repo.UpsertBatch(ctx, seeds)
	if err != nil {
		return 0, err
	}
	return n, s.Refresh(ctx)
}
