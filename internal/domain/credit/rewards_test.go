package credit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

func TestRewardPolicy_SessionReward(t *testing.T) {
	p := DefaultRewardPolicy()

	tests := []struct {
		name    string
		base    int
		rating  float64
		minutes int
		want    int
	}{
		{"high rating, 45 minutes", 25, 4.7, 45, 56},
		{"good rating, 30 minutes", 20, 4.2, 30, 24},
		{"plain rating, short session", 20, 3.0, 15, 20},
		{"boundary 4.5", 10, 4.5, 30, 15},
		{"boundary 4.0", 10, 4.0, 60, 24},
		{"unknown base falls back to default", 0, 3.0, 30, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.SessionReward(tt.base, tt.rating, tt.minutes))
		})
	}
}

func TestRewardPolicy_SessionRewardFor_UnknownSkill(t *testing.T) {
	p := DefaultRewardPolicy()
	table := rate.NewTable([]rate.SkillEarningRate{{SkillName: "Go", Category: rate.CategoryProgramming, BaseRate: 25}})

	reward, base := p.SessionRewardFor(table, "go", 4.7, 45)
	assert.Equal(t, 56, reward)
	assert.Equal(t, 25, base)

	reward, base = p.SessionRewardFor(table, "Knitting", 1.0, 10)
	assert.Equal(t, 20, reward)
	assert.Equal(t, rate.DefaultBaseRate, base)
}

func TestRewardPolicy_BadgeReward(t *testing.T) {
	p := DefaultRewardPolicy()
	assert.Equal(t, 75, p.BadgeReward(750))
	assert.Equal(t, 5, p.BadgeReward(50))
	assert.Equal(t, 2, p.BadgeReward(29))
	assert.Equal(t, 0, p.BadgeReward(9))
	assert.Equal(t, 0, p.BadgeReward(0))
}

func TestRewardPolicy_StreakReward(t *testing.T) {
	p := DefaultRewardPolicy()
	cases := map[int]int{
		0: 0, 1: 5, 2: 5, 3: 10, 6: 10, 7: 15, 10: 15, 13: 15, 14: 25, 29: 25, 30: 50, 365: 50, -1: 0,
	}
	for days, want := range cases {
		assert.Equal(t, want, p.StreakReward(days), "days=%d", days)
	}
}

func TestRewardPolicy_SkillVerificationReward(t *testing.T) {
	p := DefaultRewardPolicy()
	assert.Equal(t, 45, p.SkillVerificationReward(rate.CategoryProgramming))
	assert.Equal(t, 39, p.SkillVerificationReward(rate.CategoryDesign))
	assert.Equal(t, 36, p.SkillVerificationReward(rate.CategoryLanguages))
	assert.Equal(t, 33, p.SkillVerificationReward(rate.CategoryMusic))
	assert.Equal(t, 30, p.SkillVerificationReward(rate.CategoryBusiness))
	assert.Equal(t, 30, p.SkillVerificationReward(rate.CategoryOther))
}

func TestRewardPolicy_ContributionReward(t *testing.T) {
	p := DefaultRewardPolicy()

	amount, src, err := p.ContributionReward(ContributionVideoUpload)
	require.NoError(t, err)
	assert.Equal(t, 15, amount)
	assert.Equal(t, SourceVideoUpload, src)

	amount, src, err = p.ContributionReward(ContributionHelpfulComment)
	require.NoError(t, err)
	assert.Equal(t, 3, amount)
	assert.Equal(t, SourceHelpfulComment, src)

	_, _, err = p.ContributionReward("meme")
	assert.True(t, shared.IsValidation(err))
}

func TestApply_NeverNegative(t *testing.T) {
	spend := &Transaction{Type: TypeSpent, Amount: 11}

	balance, err := Apply(10, spend)
	assert.ErrorIs(t, err, shared.ErrInsufficientBalance)
	assert.Equal(t, 10, balance)

	balance, err = Apply(11, spend)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestTransaction_Validate(t *testing.T) {
	valid := &Transaction{UserID: "u1", Type: TypeEarned, Amount: 5, Source: SourceVideoUpload}
	assert.NoError(t, valid.Validate())

	zero := *valid
	zero.Amount = 0
	assert.ErrorIs(t, zero.Validate(), shared.ErrInvalidAmount)

	badType := *valid
	badType.Type = "refund"
	assert.ErrorIs(t, badType.Validate(), shared.ErrInvalidTxType)

	badSource := *valid
	badSource.Source = "lottery"
	assert.ErrorIs(t, badSource.Validate(), shared.ErrInvalidSource)
}

func TestReplay(t *testing.T) {
	txs := []*Transaction{
		{Type: TypeEarned, Amount: 50},
		{Type: TypeBonus, Amount: 5},
		{Type: TypeSpent, Amount: 20},
		{Type: TypePenalty, Amount: 10},
	}
	assert.Equal(t, 25, Replay(txs))
}
