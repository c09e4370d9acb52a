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
// SOS MATCHES QUERY
// Срочная помощь по навыку: до 5 доступных прямо сейчас пользователей.
// ══════════════════════════════════════════════════════════════════════════════

// SOSQuery содержит параметры срочного поиска.
type SOSQuery struct {
	// Skill - навык, с которым нужна помощь.
	Skill string

	// RequesterID - кто просит помощи (исключается из выдачи). Опционально.
	RequesterID string
}

// Validate проверяет параметры.
func (q SOSQuery) Validate() error {
	if shared.SkillKey(q.Skill) == "" {
		return shared.NewDomainError("matching", "SOS", shared.ErrEmptyValue, "skill is required")
	}
	return nil
}

// SOSResult - результат запроса.
type SOSResult struct {
	Skill      string     `json:"skill"`
	Helpers    []MatchDTO `json:"helpers"`
	Fallback   bool       `json:"fallback"`
	ComputedAt time.Time  `json:"computed_at"`
}

// SOSHandler обрабатывает срочный поиск.
type SOSHandler struct {
	users    user.Repository
	engine   *matching.Engine
	metrics  MatchMetrics
	logger   *slog.Logger
	poolSize int
}

// NewSOSHandler создаёт обработчик.
func NewSOSHandler(users user.Repository, engine *matching.Engine, metrics MatchMetrics, logger *slog.Logger) *SOSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMatchMetrics{}
	}
	return &SOSHandler{
		users:    users,
		engine:   engine,
		metrics:  metrics,
		logger:   logger.With("handler", "sos_matches"),
		poolSize: DefaultPoolSize,
	}
}

// Handle выполняет запрос.
func (h *SOSHandler) Handle(ctx context.Context, q SOSQuery) (*SOSResult, error) {
	start := time.Now()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var exclude []string
	if q.RequesterID != "" {
		exclude = []string{q.RequesterID}
	}

	// Основной пул и резервный (высокий рейтинг) читаются одновременно.
	var teachers, rated []*user.User
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		teachers, err = h.users.Search(gctx, user.Filter{
			Status:      user.StatusAvailable,
			OffersSkill: q.Skill,
			ExcludeIDs:  exclude,
			Limit:       h.poolSize,
		})
		return err
	})
	g.Go(func() error {
		var err error
		rated, err = h.users.Search(gctx, user.Filter{
			Status:        user.StatusAvailable,
			MinReputation: matching.SOSFallbackMinReputation,
			ExcludeIDs:    exclude,
			Limit:         h.poolSize,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sos_matches: %w", err)
	}

	results := h.engine.ComputeSOSMatches(q.Skill, append(teachers, rated...), q.RequesterID)
	fallback := results.HasFallback()
	h.metrics.MatchServed("sos", fallback, time.Since(start))

	if len(results) == 0 {
		h.logger.Info("no helpers available", "skill", q.Skill)
	}

	return &SOSResult{
		Skill:      q.Skill,
		Helpers:    toMatchDTOs(results),
		Fallback:   fallback,
		ComputedAt: time.Now().UTC(),
	}, nil
}
