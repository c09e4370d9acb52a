package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/pkg/keylock"
)

func TestLedgerService_AddAndSpend(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUsers(t, "alice")
	pub := &recordingPublisher{}
	svc := newLedger(store, pub, nil)

	res, err := svc.AddCredits(ctx, AddCreditsCommand{UserID: "alice", Amount: 40, Source: credit.SourcePurchase})
	require.NoError(t, err)
	assert.Equal(t, credit.TypeEarned, res.Transaction.Type)
	assert.Equal(t, 40, res.Balance)

	res, err = svc.SpendCredits(ctx, SpendCreditsCommand{UserID: "alice", Amount: 15, Source: credit.SourceSessionBooking})
	require.NoError(t, err)
	assert.Equal(t, 25, res.Balance)

	assert.Len(t, pub.ofType(shared.EventCreditsEarned), 1)
	assert.Len(t, pub.ofType(shared.EventCreditsSpent), 1)
}

func TestLedgerService_SpendInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUsers(t, "alice")
	metrics := &recordingMetrics{}
	svc := newLedger(store, nil, metrics)

	_, err := svc.AddCredits(ctx, AddCreditsCommand{UserID: "alice", Amount: 10, Source: credit.SourcePurchase})
	require.NoError(t, err)

	_, err = svc.SpendCredits(ctx, SpendCreditsCommand{UserID: "alice", Amount: 11, Source: credit.SourceMarketplace})
	assert.ErrorIs(t, err, shared.ErrInsufficientBalance)

	balance, err := svc.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
	assert.Equal(t, 1, metrics.rejected["insufficient_balance"])
}

func TestLedgerService_UnknownUser(t *testing.T) {
	svc := newLedger(newStoreWithUsers(t), nil, nil)

	_, err := svc.AddCredits(context.Background(), AddCreditsCommand{UserID: "ghost", Amount: 1, Source: credit.SourcePurchase})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestLedgerService_AddCredits_RejectsDebitTypes(t *testing.T) {
	svc := newLedger(newStoreWithUsers(t, "alice"), nil, nil)

	for _, typ := range []credit.TransactionType{credit.TypeSpent, credit.TypePenalty} {
		_, err := svc.AddCredits(context.Background(), AddCreditsCommand{
			UserID: "alice", Type: typ, Amount: 5, Source: credit.SourcePurchase,
		})
		assert.ErrorIs(t, err, shared.ErrInvalidTxType, typ)
	}
}

func TestLedgerService_IdempotentReplayPublishesOnce(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUsers(t, "alice")
	pub := &recordingPublisher{}
	svc := newLedger(store, pub, nil)

	cmd := AddCreditsCommand{UserID: "alice", Amount: 20, Source: credit.SourceReferral, IdempotencyKey: "ref-1"}
	first, err := svc.AddCredits(ctx, cmd)
	require.NoError(t, err)
	second, err := svc.AddCredits(ctx, cmd)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Len(t, pub.ofType(shared.EventCreditsEarned), 1)

	balance, err := svc.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 20, balance)
}

func TestLedgerService_Penalize(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUsers(t, "alice")
	svc := newLedger(store, nil, nil)

	_, err := svc.AddCredits(ctx, AddCreditsCommand{UserID: "alice", Amount: 30, Source: credit.SourcePurchase})
	require.NoError(t, err)

	res, err := svc.Penalize(ctx, PenaltyCommand{UserID: "alice", Amount: 10, Reason: "no-show"})
	require.NoError(t, err)
	assert.Equal(t, credit.TypePenalty, res.Transaction.Type)
	assert.Equal(t, credit.SourceAdminAdjustment, res.Transaction.Source)
	assert.Equal(t, 20, res.Balance)

	_, err = svc.Penalize(ctx, PenaltyCommand{UserID: "alice", Amount: 21, Reason: "no-show"})
	assert.ErrorIs(t, err, shared.ErrInsufficientBalance)

	_, err = svc.Penalize(ctx, PenaltyCommand{UserID: "alice", Amount: 1})
	assert.Error(t, err)
}

func TestLedgerService_BalanceInvariantUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUsers(t, "alice")
	svc := newLedger(store, nil, nil)

	_, err := svc.AddCredits(ctx, AddCreditsCommand{UserID: "alice", Amount: 50, Source: credit.SourcePurchase})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.SpendCredits(ctx, SpendCreditsCommand{UserID: "alice", Amount: 7, Source: credit.SourceMarketplace})
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.AddCredits(ctx, AddCreditsCommand{UserID: "alice", Amount: 3, Source: credit.SourceReferral})
		}()
	}
	wg.Wait()

	txs, err := store.ListByUser(ctx, "alice")
	require.NoError(t, err)
	balance, err := svc.Balance(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, credit.Replay(txs), balance)
	assert.GreaterOrEqual(t, balance, 0)
	for _, tx := range txs {
		assert.GreaterOrEqual(t, tx.BalanceAfter, 0)
	}
}

// panicOnceLedger panics on the first post and delegates afterwards.
type panicOnceLedger struct {
	credit.Ledger
	panicked bool
}

func (l *panicOnceLedger) Post(ctx context.Context, tx *credit.Transaction) (*credit.PostResult, error) {
	if !l.panicked {
		l.panicked = true
		panic("store exploded")
	}
	return l.Ledger.Post(ctx, tx)
}

func TestLedgerService_PanicReleasesUserLock(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithUsers(t, "alice")
	svc := NewLedgerService(&panicOnceLedger{Ledger: store}, keylock.New(), nil, nil, nil,
		LedgerConfig{LockTimeout: 200 * time.Millisecond})
	cmd := AddCreditsCommand{UserID: "alice", Amount: 10, Source: credit.SourcePurchase}

	assert.Panics(t, func() { _, _ = svc.AddCredits(ctx, cmd) })

	res, err := svc.AddCredits(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Balance)
}
