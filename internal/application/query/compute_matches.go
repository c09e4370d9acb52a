// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skillswap-hub/skillswap-core/internal/domain/matching"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPUTE MATCHES QUERY
// Подбирает партнёров по обмену навыками для пользователя.
// Пул кандидатов собирается несколькими параллельными чтениями хранилища:
// кто преподаёт нужные навыки, кто хочет изучить предлагаемые, и недавно
// активные пользователи (для совместимости и резервного списка).
// ══════════════════════════════════════════════════════════════════════════════

// MatchMetrics записывает метрики подбора.
type MatchMetrics interface {
	MatchServed(kind string, fallback bool, took time.Duration)
}

type nopMatchMetrics struct{}

func (nopMatchMetrics) MatchServed(string, bool, time.Duration) {}

const (
	// MaxMatchLimit - верхняя граница limit.
	MaxMatchLimit = 50

	// DefaultPoolSize - сколько кандидатов читать на одну выборку.
	DefaultPoolSize = 200
)

// ComputeMatchesQuery содержит параметры подбора.
type ComputeMatchesQuery struct {
	// UserID - для кого подбираем.
	UserID string

	// Limit - максимум результатов (по умолчанию 10, не больше 50).
	Limit int
}

// Validate проверяет параметры и выставляет значения по умолчанию.
func (q *ComputeMatchesQuery) Validate() error {
	if q.UserID == "" {
		return shared.ErrInvalidUserID
	}
	if q.Limit <= 0 {
		q.Limit = matching.DefaultLimit
	}
	if q.Limit > MaxMatchLimit {
		q.Limit = MaxMatchLimit
	}
	return nil
}

// MatchDTO - кандидат в ответе.
type MatchDTO struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Rank        int      `json:"rank"`
	Score       int      `json:"score"`
	Reasons     []string `json:"reasons"`
	Distance    *float64 `json:"distance,omitempty"`

	// Fallback - резервный результат ("explore"), а не настоящее совпадение.
	Fallback bool `json:"fallback"`

	Reputation   float64  `json:"reputation"`
	Level        int      `json:"level"`
	IsVerified   bool     `json:"is_verified"`
	Availability string   `json:"availability"`
	Offered      []string `json:"offered"`
	Wanted       []string `json:"wanted"`
}

// ComputeMatchesResult - результат запроса.
type ComputeMatchesResult struct {
	UserID     string     `json:"user_id"`
	Matches    []MatchDTO `json:"matches"`
	Fallback   bool       `json:"fallback"`
	PoolSize   int        `json:"pool_size"`
	ComputedAt time.Time  `json:"computed_at"`
}

// ComputeMatchesConfig - конфигурация обработчика.
type ComputeMatchesConfig struct {
	// PoolSize - лимит каждой выборки кандидатов.
	PoolSize int

	// FetchConcurrency - сколько выборок идут одновременно.
	FetchConcurrency int
}

// DefaultComputeMatchesConfig возвращает конфигурацию по умолчанию.
func DefaultComputeMatchesConfig() ComputeMatchesConfig {
	return ComputeMatchesConfig{PoolSize: DefaultPoolSize, FetchConcurrency: 4}
}

// ComputeMatchesHandler обрабатывает запрос подбора.
type ComputeMatchesHandler struct {
	users   user.Repository
	engine  *matching.Engine
	metrics MatchMetrics
	logger  *slog.Logger
	config  ComputeMatchesConfig
}

// NewComputeMatchesHandler создаёт обработчик.
func NewComputeMatchesHandler(
	users user.Repository,
	engine *matching.Engine,
	metrics MatchMetrics,
	logger *slog.Logger,
	config ComputeMatchesConfig,
) *ComputeMatchesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMatchMetrics{}
	}
	if config.PoolSize <= 0 {
		config.PoolSize = DefaultPoolSize
	}
	if config.FetchConcurrency <= 0 {
		config.FetchConcurrency = 4
	}
	return &ComputeMatchesHandler{
		users:   users,
		engine:  engine,
		metrics: metrics,
		logger:  logger.With("handler", "compute_matches"),
		config:  config,
	}
}

// Handle выполняет запрос.
func (h *ComputeMatchesHandler) Handle(ctx context.Context, q ComputeMatchesQuery) (*ComputeMatchesResult, error) {
	start := time.Now()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	subject, err := h.users.GetByID(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("compute_matches: %w", err)
	}

	pool, err := h.loadPool(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("compute_matches: load candidates: %w", err)
	}

	results := h.engine.ComputeMatches(subject, pool, q.Limit)
	fallback := results.HasFallback()
	h.metrics.MatchServed("regular", fallback, time.Since(start))

	h.logger.Debug("matches computed",
		"user_id", q.UserID,
		"pool", len(pool),
		"results", len(results),
		"fallback", fallback,
	)

	return &ComputeMatchesResult{
		UserID:     q.UserID,
		Matches:    toMatchDTOs(results),
		Fallback:   fallback,
		PoolSize:   len(pool),
		ComputedAt: time.Now().UTC(),
	}, nil
}

// loadPool читает кандидатов параллельно. Каждая выборка пишет в свою ячейку,
// порядок объединения фиксирован, поэтому результат детерминирован.
func (h *ComputeMatchesHandler) loadPool(ctx context.Context, subject *user.User) ([]*user.User, error) {
	exclude := []string{subject.ID}
	filters := []user.Filter{{ExcludeIDs: exclude, Limit: h.config.PoolSize}}
	for _, s := range subject.Skills.Wanted {
		filters = append(filters, user.Filter{OffersSkill: s, ExcludeIDs: exclude, Limit: h.config.PoolSize})
	}
	for _, s := range subject.Skills.Offered {
		filters = append(filters, user.Filter{WantsSkill: s, ExcludeIDs: exclude, Limit: h.config.PoolSize})
	}

	batches := make([][]*user.User, len(filters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.FetchConcurrency)
	for i, f := range filters {
		g.Go(func() error {
			found, err := h.users.Search(gctx, f)
			if err != nil {
				return err
			}
			batches[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pool []*user.User
	for _, b := range batches {
		pool = append(pool, b...)
	}
	return matching.Dedupe(subject, pool), nil
}

func toMatchDTOs(results matching.ResultList) []MatchDTO {
	out := make([]MatchDTO, 0, len(results))
	for _, r := range results {
		out = append(out, MatchDTO{
			UserID:       r.User.ID,
			DisplayName:  r.User.DisplayName,
			Rank:         r.Rank,
			Score:        r.Score,
			Reasons:      r.Reasons,
			Distance:     r.Distance,
			Fallback:     r.Fallback,
			Reputation:   r.User.Reputation,
			Level:        r.User.Level,
			IsVerified:   r.User.IsVerified,
			Availability: string(r.User.Availability.Status),
			Offered:      r.User.Skills.Offered,
			Wanted:       r.User.Skills.Wanted,
		})
	}
	return out
}
