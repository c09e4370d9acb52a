package command

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/persistence/memory"
	"github.com/skillswap-hub/skillswap-core/pkg/keylock"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingMetrics struct {
	mu       sync.Mutex
	posted   int
	rejected map[string]int
}

func (m *recordingMetrics) TransactionPosted(string, string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted++
}

func (m *recordingMetrics) TransactionRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejected == nil {
		m.rejected = make(map[string]int)
	}
	m.rejected[reason]++
}

type staticRates struct{ table *rate.Table }

func (s staticRates) Current(context.Context) (*rate.Table, error) { return s.table, nil }

func newStoreWithUsers(t *testing.T, ids ...string) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	for _, id := range ids {
		u, err := user.NewUser(user.NewUserParams{ID: id})
		require.NoError(t, err)
		require.NoError(t, store.Create(context.Background(), u))
	}
	return store
}

func newLedger(store *memory.Store, pub shared.EventPublisher, m LedgerMetrics) *LedgerService {
	return NewLedgerService(store, keylock.New(), pub, m, nil, DefaultLedgerConfig())
}

type countingRefresher struct{ calls int }

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls++
	return nil
}

func newRateRepo() *memory.RateRepository {
	return memory.NewRateRepository()
}

// flakyStore fails the first ledger post carrying failKey, or the first
// settlement when failSettle is set, and delegates everything else.
type flakyStore struct {
	*memory.Store
	failKey    string
	failSettle bool
	failed     bool
}

func (s *flakyStore) Post(ctx context.Context, tx *credit.Transaction) (*credit.PostResult, error) {
	if !s.failed && s.failKey != "" && tx.IdempotencyKey == s.failKey {
		s.failed = true
		return nil, shared.ErrServiceUnavailable
	}
	return s.Store.Post(ctx, tx)
}

func (s *flakyStore) SettleSession(ctx context.Context, in user.SessionSettlement) (*user.SettlementResult, error) {
	if !s.failed && s.failSettle {
		s.failed = true
		return nil, shared.ErrServiceUnavailable
	}
	return s.Store.SettleSession(ctx, in)
}
