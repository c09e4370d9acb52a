package saga

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-core/internal/application/command"
	"github.com/skillswap-hub/skillswap-core/internal/domain/badge"
	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/persistence/memory"
	"github.com/skillswap-hub/skillswap-core/pkg/keylock"
)

type countingPublisher struct {
	mu     sync.Mutex
	badges int
}

func (p *countingPublisher) Publish(e shared.Event) error {
	if e.EventType() == shared.EventBadgeAwarded {
		p.mu.Lock()
		p.badges++
		p.mu.Unlock()
	}
	return nil
}

type fixture struct {
	store  *memory.Store
	ledger *command.LedgerService
	flow   *BadgeAwardFlow
	pub    *countingPublisher
}

func newFixture(t *testing.T, skills user.Skills) *fixture {
	t.Helper()
	store := memory.NewStore()
	u, err := user.NewUser(user.NewUserParams{ID: "alice", Skills: skills})
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), u))

	pub := &countingPublisher{}
	ledger := command.NewLedgerService(store, keylock.New(), pub, nil, nil, command.DefaultLedgerConfig())
	flow, err := NewBadgeAwardFlowBuilder().
		WithUsers(store).
		WithRewards(ledger).
		WithPublisher(pub).
		Build()
	require.NoError(t, err)

	return &fixture{store: store, ledger: ledger, flow: flow, pub: pub}
}

func TestBadgeAwardFlow_FirstSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user.Skills{})

	_, err := f.store.IncrementSessions(ctx, "alice")
	require.NoError(t, err)

	res, err := f.flow.EvaluateAndAward(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, res.Awarded, 1)
	assert.Equal(t, "first_session", res.Awarded[0].ID)
	assert.Equal(t, 5, res.TotalReward)

	balance, err := f.ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, balance)

	// Nothing new on the second pass.
	res, err = f.flow.EvaluateAndAward(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, res.HasNewBadges())
	assert.Equal(t, 1, f.pub.badges)
}

func TestBadgeAwardFlow_ConcurrentRunsAwardOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user.Skills{Offered: []string{"Go", "Rust"}, Wanted: []string{"Piano"}})
	_, err := f.store.IncrementSessions(ctx, "alice")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.flow.EvaluateAndAward(ctx, "alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := f.store.GetByID(ctx, "alice")
	require.NoError(t, err)
	seen := map[string]int{}
	for _, b := range u.Badges {
		seen[b.ID]++
	}
	assert.Equal(t, map[string]int{"first_session": 1, "skills_3": 1}, seen)

	balance, err := f.ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5+5, balance)
	assert.Equal(t, 2, f.pub.badges)
}

func TestBadgeAwardFlow_EvaluateForRestrictsKinds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user.Skills{Offered: []string{"Go", "Rust", "SQL"}})
	_, err := f.store.IncrementSessions(ctx, "alice")
	require.NoError(t, err)

	res, err := f.flow.EvaluateFor(ctx, "alice", badge.CriteriaSessions)
	require.NoError(t, err)
	require.Len(t, res.Awarded, 1)
	assert.Equal(t, "first_session", res.Awarded[0].ID)

	res, err = f.flow.EvaluateFor(ctx, "alice", badge.CriteriaSkills)
	require.NoError(t, err)
	require.Len(t, res.Awarded, 1)
	assert.Equal(t, "skills_3", res.Awarded[0].ID)
}

func TestBadgeAwardFlow_AwardSpecial(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user.Skills{})

	ok, err := f.flow.AwardSpecial(ctx, "alice", "community_champion")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.flow.AwardSpecial(ctx, "alice", "community_champion")
	require.NoError(t, err)
	assert.False(t, ok)

	balance, err := f.ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 75, balance)

	txs, err := f.store.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, credit.SourceBadgeEarned, txs[0].Source)
	assert.Equal(t, credit.TypeBonus, txs[0].Type)

	_, err = f.flow.AwardSpecial(ctx, "alice", "no_such_badge")
	assert.ErrorIs(t, err, shared.ErrBadgeNotFound)

	_, err = f.flow.AwardSpecial(ctx, "alice", "first_session")
	assert.ErrorIs(t, err, shared.ErrBadgeNotManual)

	var flowErr *BadgeAwardError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StepEvaluate, flowErr.Step)
}

func TestBadgeAwardFlow_NeverAutoAwardsSpecial(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user.Skills{})
	for i := 0; i < 200; i++ {
		_, err := f.store.IncrementSessions(ctx, "alice")
		require.NoError(t, err)
	}

	res, err := f.flow.EvaluateAndAward(ctx, "alice")
	require.NoError(t, err)
	for _, b := range res.Awarded {
		def, ok := f.flow.Catalog().Get(b.ID)
		require.True(t, ok)
		assert.False(t, def.IsManual(), b.ID)
	}
	assert.Len(t, res.Awarded, 6)
}

func TestBadgeAwardFlow_UnknownUser(t *testing.T) {
	f := newFixture(t, user.Skills{})

	_, err := f.flow.EvaluateAndAward(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

// failOnceRewards fails the first reward posting and delegates afterwards.
type failOnceRewards struct {
	next   RewardPoster
	failed bool
}

func (r *failOnceRewards) AddCredits(ctx context.Context, cmd command.AddCreditsCommand) (*credit.PostResult, error) {
	if !r.failed {
		r.failed = true
		return nil, shared.ErrServiceUnavailable
	}
	return r.next.AddCredits(ctx, cmd)
}

// failOnceAppend fails the first badge append and delegates afterwards.
type failOnceAppend struct {
	*memory.Store
	failed bool
}

func (s *failOnceAppend) AppendBadge(ctx context.Context, id string, b user.Badge) (bool, error) {
	if !s.failed {
		s.failed = true
		return false, shared.ErrServiceUnavailable
	}
	return s.Store.AppendBadge(ctx, id, b)
}

func TestBadgeAwardFlow_RetryAfterRewardFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user.Skills{})
	_, err := f.store.IncrementSessions(ctx, "alice")
	require.NoError(t, err)

	flow, err := NewBadgeAwardFlowBuilder().
		WithUsers(f.store).
		WithRewards(&failOnceRewards{next: f.ledger}).
		WithPublisher(f.pub).
		Build()
	require.NoError(t, err)

	_, err = flow.EvaluateAndAward(ctx, "alice")
	require.ErrorIs(t, err, shared.ErrServiceUnavailable)

	var flowErr *BadgeAwardError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StepPostReward, flowErr.Step)

	u, err := f.store.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, u.Badges)

	res, err := flow.EvaluateAndAward(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, res.Awarded, 1)
	assert.Equal(t, 5, res.TotalReward)

	balance, err := f.ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, balance)
	assert.Equal(t, 1, f.pub.badges)
}

func TestBadgeAwardFlow_RetryAfterAppendFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, user.Skills{})
	_, err := f.store.IncrementSessions(ctx, "alice")
	require.NoError(t, err)

	users := &failOnceAppend{Store: f.store}
	flow, err := NewBadgeAwardFlowBuilder().
		WithUsers(users).
		WithRewards(f.ledger).
		WithPublisher(f.pub).
		Build()
	require.NoError(t, err)

	_, err = flow.EvaluateAndAward(ctx, "alice")
	require.ErrorIs(t, err, shared.ErrServiceUnavailable)

	res, err := flow.EvaluateAndAward(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, res.Awarded, 1)
	assert.Equal(t, "first_session", res.Awarded[0].ID)

	// The reward from the failed run is replayed, not paid twice.
	txs, err := f.store.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 5, txs[0].Amount)
	assert.Equal(t, 1, f.pub.badges)
}
