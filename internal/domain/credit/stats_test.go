package credit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(typ TransactionType, src Source, amount int, at time.Time) *Transaction {
	return &Transaction{UserID: "u1", Type: typ, Source: src, Amount: amount, CreatedAt: at}
}

func TestComputeEarningStats(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	txs := []*Transaction{
		tx(TypeEarned, SourceSessionTeaching, 56, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		tx(TypeBonus, SourceBadgeEarned, 5, time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC)),
		tx(TypeEarned, SourceSessionTeaching, 24, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)),
		tx(TypeBonus, SourceDailyStreak, 15, time.Date(2025, 10, 31, 23, 59, 0, 0, time.UTC)),
		tx(TypeEarned, SourceVideoUpload, 15, time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC)), // outside window
		tx(TypeSpent, SourceSessionBooking, 40, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)),
		tx(TypePenalty, SourceAdminAdjustment, 10, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)),
	}

	stats := ComputeEarningStats("u1", txs, Replay(txs), now, time.UTC)

	assert.Equal(t, 115, stats.TotalEarned)
	assert.Equal(t, 50, stats.TotalSpent)
	assert.Equal(t, 65, stats.CurrentBalance)
	assert.Equal(t, 7, stats.TransactionCount)

	require.Len(t, stats.TopEarningSources, 4)
	assert.Equal(t, SourceSessionTeaching, stats.TopEarningSources[0].Source)
	assert.Equal(t, 80, stats.TopEarningSources[0].Amount)
	assert.Equal(t, 2, stats.TopEarningSources[0].Count)
	// 15 vs 15: ties broken by source name
	assert.Equal(t, SourceDailyStreak, stats.TopEarningSources[1].Source)
	assert.Equal(t, SourceVideoUpload, stats.TopEarningSources[2].Source)
	assert.Equal(t, SourceBadgeEarned, stats.TopEarningSources[3].Source)

	require.Len(t, stats.MonthlyEarnings, 6)
	months := make([]string, 0, 6)
	for _, m := range stats.MonthlyEarnings {
		months = append(months, m.Month)
	}
	assert.Equal(t, []string{"2025-10", "2025-11", "2025-12", "2026-01", "2026-02", "2026-03"}, months)
	assert.Equal(t, 15, stats.MonthlyEarnings[0].Earned)
	assert.Equal(t, 0, stats.MonthlyEarnings[1].Earned)
	assert.Equal(t, 24, stats.MonthlyEarnings[3].Earned)
	assert.Equal(t, 40, stats.MonthlyEarnings[4].Spent)
	assert.Equal(t, 61, stats.MonthlyEarnings[5].Earned)
	assert.Equal(t, 10, stats.MonthlyEarnings[5].Spent)
}

func TestComputeEarningStats_TopSourcesCapped(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	var txs []*Transaction
	for i, src := range []Source{
		SourceSessionTeaching, SourceSessionLearning, SourceBadgeEarned, SourceDailyStreak,
		SourceSkillVerification, SourceVideoUpload, SourceHelpfulComment,
	} {
		txs = append(txs, tx(TypeEarned, src, 10*(i+1), now))
	}

	stats := ComputeEarningStats("u1", txs, Replay(txs), now, time.UTC)

	require.Len(t, stats.TopEarningSources, TopSourcesLimit)
	assert.Equal(t, SourceHelpfulComment, stats.TopEarningSources[0].Source)
	assert.Equal(t, 70, stats.TopEarningSources[0].Amount)
}

func TestComputeEarningStats_Empty(t *testing.T) {
	stats := ComputeEarningStats("u1", nil, 0, time.Now(), nil)

	assert.Zero(t, stats.TotalEarned)
	assert.Empty(t, stats.TopEarningSources)
	assert.Len(t, stats.MonthlyEarnings, MonthlyWindow)
}
