package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/pkg/keylock"
)

func newCompleteSession(t *testing.T, pub *recordingPublisher) (*CompleteSessionHandler, *LedgerService) {
	t.Helper()
	store := newStoreWithUsers(t, "teacher", "learner")
	ledger := newLedger(store, pub, nil)
	rates := staticRates{table: rate.NewTable([]rate.SkillEarningRate{
		{SkillName: "Guitar", Category: rate.CategoryMusic, BaseRate: 25},
	})}
	return NewCompleteSessionHandler(store, rates, ledger, credit.DefaultRewardPolicy(), pub, nil), ledger
}

func TestCompleteSession_RewardsBothParticipants(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	h, ledger := newCompleteSession(t, pub)

	res, err := h.Handle(ctx, CompleteSessionCommand{
		SessionID:       "s-1",
		TeacherID:       "teacher",
		LearnerID:       "learner",
		Skill:           "guitar",
		Rating:          4.7,
		DurationMinutes: 45,
	})
	require.NoError(t, err)

	assert.Equal(t, 56, res.TeacherReward)
	assert.Equal(t, 25, res.BaseRate)
	assert.False(t, res.UnknownSkill)
	assert.Equal(t, 5, res.LearnerBonus)
	assert.Equal(t, 1, res.TeacherSessions)
	assert.Equal(t, 1, res.LearnerSessions)
	assert.Equal(t, 4.7, res.TeacherReputation)

	teacherBal, err := ledger.Balance(ctx, "teacher")
	require.NoError(t, err)
	learnerBal, err := ledger.Balance(ctx, "learner")
	require.NoError(t, err)
	assert.Equal(t, 56, teacherBal)
	assert.Equal(t, 5, learnerBal)

	assert.Len(t, pub.ofType(shared.EventSessionCompleted), 1)
	assert.Len(t, pub.ofType(shared.EventReputationChanged), 1)
}

func TestCompleteSession_UnknownSkillUsesDefaultRate(t *testing.T) {
	h, _ := newCompleteSession(t, &recordingPublisher{})

	res, err := h.Handle(context.Background(), CompleteSessionCommand{
		SessionID: "s-2", TeacherID: "teacher", LearnerID: "learner",
		Skill: "Juggling", Rating: 3, DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.True(t, res.UnknownSkill)
	assert.Equal(t, rate.DefaultBaseRate, res.BaseRate)
	assert.Equal(t, 20, res.TeacherReward)
}

func TestCompleteSession_RetryIsReplayed(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	h, ledger := newCompleteSession(t, pub)
	cmd := CompleteSessionCommand{
		SessionID: "s-3", TeacherID: "teacher", LearnerID: "learner",
		Skill: "Guitar", Rating: 4.0, DurationMinutes: 60,
	}

	_, err := h.Handle(ctx, cmd)
	require.NoError(t, err)
	again, err := h.Handle(ctx, cmd)
	require.NoError(t, err)

	assert.True(t, again.Replayed)
	assert.Equal(t, 60, again.TeacherReward)
	teacherBal, err := ledger.Balance(ctx, "teacher")
	require.NoError(t, err)
	assert.Equal(t, 60, teacherBal)
	assert.Len(t, pub.ofType(shared.EventSessionCompleted), 1)
}

func TestCompleteSession_RetryFinishesPartialSettlement(t *testing.T) {
	cases := map[string]*flakyStore{
		"learner bonus fails": {failKey: "session:s-4:learner"},
		"settlement fails":    {failSettle: true},
	}
	for name, store := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.Store = newStoreWithUsers(t, "teacher", "learner")
			pub := &recordingPublisher{}
			ledger := NewLedgerService(store, keylock.New(), pub, nil, nil, DefaultLedgerConfig())
			rates := staticRates{table: rate.NewTable([]rate.SkillEarningRate{
				{SkillName: "Guitar", Category: rate.CategoryMusic, BaseRate: 25},
			})}
			h := NewCompleteSessionHandler(store, rates, ledger, credit.DefaultRewardPolicy(), pub, nil)
			cmd := CompleteSessionCommand{
				SessionID: "s-4", TeacherID: "teacher", LearnerID: "learner",
				Skill: "Guitar", Rating: 3, DurationMinutes: 30,
			}

			_, err := h.Handle(ctx, cmd)
			require.ErrorIs(t, err, shared.ErrServiceUnavailable)
			assert.Empty(t, pub.ofType(shared.EventSessionCompleted))

			res, err := h.Handle(ctx, cmd)
			require.NoError(t, err)
			assert.False(t, res.Replayed)
			assert.Equal(t, 25, res.TeacherReward)
			assert.Equal(t, 25, res.TeacherBalance)
			assert.Equal(t, 5, res.LearnerBalance)
			assert.Equal(t, 1, res.TeacherSessions)
			assert.Equal(t, 1, res.LearnerSessions)
			assert.Equal(t, 3.0, res.TeacherReputation)
			assert.Len(t, pub.ofType(shared.EventSessionCompleted), 1)

			again, err := h.Handle(ctx, cmd)
			require.NoError(t, err)
			assert.True(t, again.Replayed)
			assert.Equal(t, 1, again.TeacherSessions)
			assert.Equal(t, 1, again.LearnerSessions)
			assert.Len(t, pub.ofType(shared.EventSessionCompleted), 1)

			teacher, err := store.GetByID(ctx, "teacher")
			require.NoError(t, err)
			assert.Equal(t, 1, teacher.ReviewCount)
			assert.Equal(t, 25, teacher.CreditBalance)
		})
	}
}

func TestCompleteSession_Validation(t *testing.T) {
	h, _ := newCompleteSession(t, &recordingPublisher{})
	ctx := context.Background()

	cases := map[string]CompleteSessionCommand{
		"missing session": {TeacherID: "teacher", LearnerID: "learner", Skill: "Guitar"},
		"self session":    {SessionID: "x", TeacherID: "teacher", LearnerID: "teacher", Skill: "Guitar"},
		"bad rating":      {SessionID: "x", TeacherID: "teacher", LearnerID: "learner", Skill: "Guitar", Rating: 6},
		"no skill":        {SessionID: "x", TeacherID: "teacher", LearnerID: "learner"},
	}
	for name, cmd := range cases {
		_, err := h.Handle(ctx, cmd)
		assert.ErrorIs(t, err, shared.ErrInvalidSessionRecord, name)
	}

	_, err := h.Handle(ctx, CompleteSessionCommand{
		SessionID: "x", TeacherID: "teacher", LearnerID: "ghost", Skill: "Guitar", Rating: 4,
	})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestApplyDailyStreak(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUsers(t, "alice")
	h := NewApplyDailyStreakHandler(newLedger(store, nil, nil), credit.DefaultRewardPolicy(), nil)
	day := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	res, err := h.Handle(ctx, ApplyDailyStreakCommand{UserID: "alice", StreakDays: 10, Day: day})
	require.NoError(t, err)
	assert.Equal(t, 15, res.Reward)
	assert.Equal(t, 15, res.Balance)

	res, err = h.Handle(ctx, ApplyDailyStreakCommand{UserID: "alice", StreakDays: 10, Day: day.Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, 15, res.Balance)

	res, err = h.Handle(ctx, ApplyDailyStreakCommand{UserID: "alice", StreakDays: 0, Day: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	txs, err := store.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestVerifySkill(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUsers(t, "alice")
	profiles := NewProfileHandler(store, nil, nil)
	offered := []string{"Go", "Spanish"}
	_, err := profiles.Update(ctx, UpdateProfileCommand{UserID: "alice", Offered: &offered})
	require.NoError(t, err)

	rates := staticRates{table: rate.NewTable([]rate.SkillEarningRate{
		{SkillName: "Go", Category: rate.CategoryProgramming, BaseRate: 30},
	})}
	h := NewVerifySkillHandler(store, rates, newLedger(store, nil, nil), credit.DefaultRewardPolicy(), nil)

	res, err := h.Handle(ctx, VerifySkillCommand{UserID: "alice", Skill: "go"})
	require.NoError(t, err)
	assert.Equal(t, 45, res.Reward)

	res, err = h.Handle(ctx, VerifySkillCommand{UserID: "alice", Skill: "Spanish"})
	require.NoError(t, err)
	assert.Equal(t, rate.CategoryOther, res.Category)
	assert.Equal(t, 30, res.Reward)

	res, err = h.Handle(ctx, VerifySkillCommand{UserID: "alice", Skill: "Go"})
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, 75, res.Balance)

	_, err = h.Handle(ctx, VerifySkillCommand{UserID: "alice", Skill: "Piano"})
	assert.True(t, shared.IsValidation(err))
}

func TestRecordContribution(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUsers(t, "alice")
	h := NewRecordContributionHandler(newLedger(store, nil, nil), credit.DefaultRewardPolicy())

	res, err := h.Handle(ctx, RecordContributionCommand{UserID: "alice", Kind: credit.ContributionVideoUpload, ContributionID: "v1"})
	require.NoError(t, err)
	assert.Equal(t, 15, res.Reward)

	res, err = h.Handle(ctx, RecordContributionCommand{UserID: "alice", Kind: credit.ContributionHelpfulComment, ContributionID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, 18, res.Balance)

	_, err = h.Handle(ctx, RecordContributionCommand{UserID: "alice", Kind: "podcast", ContributionID: "p1"})
	assert.Error(t, err)
}

func TestUpsertEarningRates(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	repo := newRateRepo()
	refresher := &countingRefresher{}
	h := NewUpsertEarningRatesHandler(repo, refresher, pub, nil)

	_, err := h.Handle(ctx, UpsertEarningRatesCommand{Rates: []rate.SkillEarningRate{
		{SkillName: "Go", BaseRate: 0},
		{SkillName: "", BaseRate: 10},
	}})
	assert.ErrorIs(t, err, shared.ErrInvalidEarningRate)
	assert.Zero(t, refresher.calls)

	res, err := h.Handle(ctx, UpsertEarningRatesCommand{Rates: []rate.SkillEarningRate{
		{SkillName: "Go", Category: "programming", BaseRate: 30},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upserted)
	assert.Equal(t, 1, refresher.calls)
	assert.Len(t, pub.ofType(shared.EventRatesUpdated), 1)
}

func TestApplyDailyStreak_OutsideRollout(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUsers(t, "alice", "bob")
	h := NewApplyDailyStreakHandler(newLedger(store, nil, nil), credit.DefaultRewardPolicy(), nil).
		WithEligibility(func(userID string) bool { return userID == "alice" })

	res, err := h.Handle(ctx, ApplyDailyStreakCommand{UserID: "bob", StreakDays: 10})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Balance)

	res, err = h.Handle(ctx, ApplyDailyStreakCommand{UserID: "alice", StreakDays: 10})
	require.NoError(t, err)
	assert.Equal(t, 15, res.Reward)
}

func TestApplyDailyStreak_DayFollowsLocation(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUsers(t, "alice")
	almaty := time.FixedZone("UTC+5", 5*60*60)
	h := NewApplyDailyStreakHandler(newLedger(store, nil, nil), credit.DefaultRewardPolicy(), nil).
		WithLocation(almaty)

	// 20:00 UTC on the 18th and 03:00 UTC on the 19th are both the 19th in UTC+5.
	evening := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)
	res, err := h.Handle(ctx, ApplyDailyStreakCommand{UserID: "alice", StreakDays: 7, Day: evening})
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	res, err = h.Handle(ctx, ApplyDailyStreakCommand{UserID: "alice", StreakDays: 7, Day: evening.Add(7 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, 15, res.Balance)

	txs, err := store.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "streak:alice:2026-10-19", txs[0].IdempotencyKey)
}
