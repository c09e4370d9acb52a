package query

import (
	"context"
	"fmt"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET EARNING STATS QUERY
// Статистика заработка по истории транзакций пользователя.
// ══════════════════════════════════════════════════════════════════════════════

// GetEarningStatsQuery содержит параметры.
type GetEarningStatsQuery struct {
	UserID string

	// Location - часовой пояс для границ месяцев (по умолчанию UTC).
	Location *time.Location
}

// GetEarningStatsHandler обрабатывает запрос статистики.
type GetEarningStatsHandler struct {
	ledger credit.Ledger
	now    func() time.Time
}

// NewGetEarningStatsHandler создаёт обработчик.
func NewGetEarningStatsHandler(ledger credit.Ledger) *GetEarningStatsHandler {
	return &GetEarningStatsHandler{
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle выполняет запрос.
func (h *GetEarningStatsHandler) Handle(ctx context.Context, q GetEarningStatsQuery) (*credit.EarningStats, error) {
	if q.UserID == "" {
		return nil, shared.ErrInvalidUserID
	}

	txs, err := h.ledger.ListByUser(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_earning_stats: %w", err)
	}
	balance, err := h.ledger.Balance(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_earning_stats: %w", err)
	}

	stats := credit.ComputeEarningStats(q.UserID, txs, balance, h.now(), q.Location)
	return &stats, nil
}
