package credit

import (
	"sort"
	"time"

	"github.com/skillswap-hub/skillswap-core/pkg/timeutil"
)

const (
	// TopSourcesLimit - сколько источников заработка возвращать.
	TopSourcesLimit = 5

	// MonthlyWindow - окно помесячной статистики (календарные месяцы).
	MonthlyWindow = 6
)

// SourceTotal - сумма начислений из одного источника.
type SourceTotal struct {
	Source Source `json:"source"`
	Amount int    `json:"amount"`
	Count  int    `json:"count"`
}

// MonthlyEarning - начисления за календарный месяц.
type MonthlyEarning struct {
	Month  string `json:"month"`
	Earned int    `json:"earned"`
	Spent  int    `json:"spent"`
}

// EarningStats - сводка по журналу пользователя.
type EarningStats struct {
	UserID            string           `json:"user_id"`
	TotalEarned       int              `json:"total_earned"`
	TotalSpent        int              `json:"total_spent"`
	CurrentBalance    int              `json:"current_balance"`
	TopEarningSources []SourceTotal    `json:"top_earning_sources"`
	MonthlyEarnings   []MonthlyEarning `json:"monthly_earnings"`
	TransactionCount  int              `json:"transaction_count"`
}

// ComputeEarningStats строит статистику по истории транзакций.
//
// TotalEarned = Σ(earned+bonus), TotalSpent = Σ(spent+penalty).
// TopEarningSources - не более 5 источников по убыванию суммы (при равенстве - по имени).
// MonthlyEarnings - последние 6 календарных месяцев до now включительно,
// от старого к новому, пустые месяцы с нулями.
func ComputeEarningStats(userID string, txs []*Transaction, balance int, now time.Time, loc *time.Location) EarningStats {
	stats := EarningStats{
		UserID:           userID,
		CurrentBalance:   balance,
		TransactionCount: len(txs),
	}

	months := timeutil.TrailingMonths(now, MonthlyWindow, loc)
	monthly := make([]MonthlyEarning, len(months))
	index := make(map[string]int, len(months))
	for i, m := range months {
		key := timeutil.MonthKey(m, loc)
		monthly[i] = MonthlyEarning{Month: key}
		index[key] = i
	}

	bySource := make(map[Source]*SourceTotal)
	for _, t := range txs {
		i, inWindow := index[timeutil.MonthKey(t.CreatedAt, loc)]

		if t.Type.IsCredit() {
			stats.TotalEarned += t.Amount
			st, ok := bySource[t.Source]
			if !ok {
				st = &SourceTotal{Source: t.Source}
				bySource[t.Source] = st
			}
			st.Amount += t.Amount
			st.Count++
			if inWindow {
				monthly[i].Earned += t.Amount
			}
			continue
		}

		stats.TotalSpent += t.Amount
		if inWindow {
			monthly[i].Spent += t.Amount
		}
	}

	top := make([]SourceTotal, 0, len(bySource))
	for _, st := range bySource {
		top = append(top, *st)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Amount != top[j].Amount {
			return top[i].Amount > top[j].Amount
		}
		return top[i].Source < top[j].Source
	})
	if len(top) > TopSourcesLimit {
		top = top[:TopSourcesLimit]
	}

	stats.TopEarningSources = top
	stats.MonthlyEarnings = monthly
	return stats
}
