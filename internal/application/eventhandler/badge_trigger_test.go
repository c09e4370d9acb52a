package eventhandler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-core/internal/application/command"
	"github.com/skillswap-hub/skillswap-core/internal/application/saga"
	"github.com/skillswap-hub/skillswap-core/internal/domain/badge"
	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/persistence/memory"
	"github.com/skillswap-hub/skillswap-core/pkg/keylock"
)

// syncBus доставляет события синхронно, в порядке подписки.
type syncBus struct {
	mu       sync.Mutex
	handlers map[shared.EventType][]shared.EventHandler
	all      []shared.EventHandler
	errs     []error
}

func newSyncBus() *syncBus {
	return &syncBus{handlers: make(map[shared.EventType][]shared.EventHandler)}
}

func (b *syncBus) Subscribe(t shared.EventType, h shared.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
	return nil
}

func (b *syncBus) SubscribeAll(h shared.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
	return nil
}

func (b *syncBus) Publish(e shared.Event) error {
	b.mu.Lock()
	hs := append(append([]shared.EventHandler(nil), b.handlers[e.EventType()]...), b.all...)
	b.mu.Unlock()
	for _, h := range hs {
		if err := h(e); err != nil {
			b.mu.Lock()
			b.errs = append(b.errs, err)
			b.mu.Unlock()
		}
	}
	return nil
}

type fakeEvaluator struct {
	calls map[string][]badge.CriteriaType
}

func (f *fakeEvaluator) EvaluateFor(_ context.Context, userID string, kinds ...badge.CriteriaType) (*saga.BadgeAwardResult, error) {
	if f.calls == nil {
		f.calls = make(map[string][]badge.CriteriaType)
	}
	f.calls[userID] = append(f.calls[userID], kinds...)
	return &saga.BadgeAwardResult{UserID: userID}, nil
}

type staticRates struct{ table *rate.Table }

func (s staticRates) Current(context.Context) (*rate.Table, error) { return s.table, nil }

func TestBadgeTriggerHandler_RoutesEventsToCriteria(t *testing.T) {
	eval := &fakeEvaluator{}
	h := NewBadgeTriggerHandler(eval, nil)

	require.NoError(t, h.Handle(shared.NewSessionCompletedEvent("s1", "t", "l", "Go", 5, 60, 60)))
	require.NoError(t, h.Handle(shared.NewReputationChangedEvent("t", 4.0, 4.5)))
	require.NoError(t, h.Handle(shared.NewSkillsChangedEvent("l", []string{"Go"}, nil)))

	assert.Equal(t, []badge.CriteriaType{badge.CriteriaSessions, badge.CriteriaRating}, eval.calls["t"])
	assert.Equal(t, []badge.CriteriaType{badge.CriteriaSessions, badge.CriteriaSkills}, eval.calls["l"])
}

func TestBadgeTriggerHandler_EnvelopePayload(t *testing.T) {
	eval := &fakeEvaluator{}
	h := NewBadgeTriggerHandler(eval, nil)

	ev := shared.EnvelopeEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventSessionCompleted, "s1"),
		Data:      map[string]interface{}{"teacher_id": "t", "learner_id": "l"},
	}
	require.NoError(t, h.Handle(ev))
	assert.Len(t, eval.calls, 2)
}

func TestBadgeTriggerHandler_IgnoresOtherEvents(t *testing.T) {
	eval := &fakeEvaluator{}
	h := NewBadgeTriggerHandler(eval, nil)

	require.NoError(t, h.Handle(shared.NewRatesUpdatedEvent([]string{"Go"})))
	assert.Empty(t, eval.calls)
}

// Полный сценарий: завершение первой сессии приносит значок first_session
// обоим участникам через событие session.completed.
func TestBadgeTriggerHandler_FirstSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, id := range []string{"teacher", "learner"} {
		u, err := user.NewUser(user.NewUserParams{ID: id})
		require.NoError(t, err)
		require.NoError(t, store.Create(ctx, u))
	}

	bus := newSyncBus()
	policy := credit.DefaultRewardPolicy()
	ledger := command.NewLedgerService(store, keylock.New(), bus, nil, nil, command.DefaultLedgerConfig())

	flow, err := saga.NewBadgeAwardFlowBuilder().
		WithUsers(store).
		WithRewards(ledger).
		WithPublisher(bus).
		Build()
	require.NoError(t, err)
	require.NoError(t, NewBadgeTriggerHandler(flow, nil).Subscribe(bus))

	table := rate.NewTable([]rate.SkillEarningRate{
		{SkillName: "Go", Category: rate.CategoryProgramming, BaseRate: 30},
	})

	complete := command.NewCompleteSessionHandler(store, staticRates{table}, ledger, policy, bus, nil)
	res, err := complete.Handle(ctx, command.CompleteSessionCommand{
		SessionID:       "s1",
		TeacherID:       "teacher",
		LearnerID:       "learner",
		Skill:           "Go",
		Rating:          3,
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	require.Empty(t, bus.errs)

	teacher, err := store.GetByID(ctx, "teacher")
	require.NoError(t, err)
	assert.Equal(t, 1, teacher.SessionsCompleted)
	assert.True(t, teacher.HasBadge("first_session"))
	assert.Len(t, teacher.Badges, 1)

	learner, err := store.GetByID(ctx, "learner")
	require.NoError(t, err)
	assert.True(t, learner.HasBadge("first_session"))

	// 50 очков значка / 10 = 5 кредитов сверху.
	reward := policy.BadgeReward(50)
	assert.Equal(t, 5, reward)
	assert.Equal(t, res.TeacherReward+reward, teacher.CreditBalance)
	assert.Equal(t, policy.LearnerBonus+reward, learner.CreditBalance)
}
