// Package memory provides in-process implementations of the domain repositories.
// It backs local development (no DATABASE_URL) and the application tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// Store keeps users, badges and the credit ledger behind one mutex, so a ledger
// post and the cached balance update are a single atomic unit.
type Store struct {
	mu    sync.RWMutex
	users map[string]*user.User
	txs   map[string][]*credit.Transaction
	idem  map[string]*credit.Transaction // userID + "\x00" + key

	// settled holds the IDs of sessions already applied by SettleSession.
	settled map[string]struct{}

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:   make(map[string]*user.User),
		txs:     make(map[string][]*credit.Transaction),
		idem:    make(map[string]*credit.Transaction),
		settled: make(map[string]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for CreatedAt timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// user.Repository
// ══════════════════════════════════════════════════════════════════════════════

// Create implements user.Repository.
func (s *Store) Create(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return shared.ErrUserAlreadyExists
	}
	c := u.Clone()
	if c.Badges == nil {
		c.Badges = []user.Badge{}
	}
	c.CreditBalance = 0
	s.users[u.ID] = c
	return nil
}

// GetByID implements user.Repository.
func (s *Store) GetByID(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return u.Clone(), nil
}

// Update implements user.Repository. Badges, balance, session count and
// reputation are owned by the atomic mutations and are not overwritten.
func (s *Store) Update(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return shared.ErrUserNotFound
	}
	next := u.Clone()
	next.Badges = cur.Badges
	next.CreditBalance = cur.CreditBalance
	next.SessionsCompleted = cur.SessionsCompleted
	next.Reputation = cur.Reputation
	next.ReviewCount = cur.ReviewCount
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = s.now()
	s.users[u.ID] = next
	return nil
}

// FindBySkill implements user.Repository.
func (s *Store) FindBySkill(ctx context.Context, skill string, limit int) ([]*user.User, error) {
	return s.Search(ctx, user.Filter{OffersSkill: skill, Limit: limit})
}

// Search implements user.Repository.
func (s *Store) Search(ctx context.Context, f user.Filter) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*user.User, 0)
	for _, u := range s.users {
		if f.Matches(u) {
			out = append(out, u.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActiveAt.Equal(out[j].LastActiveAt) {
			return out[i].LastActiveAt.After(out[j].LastActiveAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// IncrementSessions implements user.Repository.
func (s *Store) IncrementSessions(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, shared.ErrUserNotFound
	}
	u.SessionsCompleted++
	u.UpdatedAt = s.now()
	return u.SessionsCompleted, nil
}

// ApplyRating implements user.Repository.
func (s *Store) ApplyRating(ctx context.Context, id string, rating float64) (float64, float64, error) {
	r, err := shared.NewRating(rating)
	if err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, 0, shared.ErrUserNotFound
	}
	old := u.Reputation
	u.Reputation = shared.RollingAverage(u.Reputation, u.ReviewCount, r)
	u.ReviewCount++
	u.UpdatedAt = s.now()
	return old, u.Reputation, nil
}

// AppendBadge implements user.Repository.
func (s *Store) AppendBadge(ctx context.Context, id string, b user.Badge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return false, shared.ErrUserNotFound
	}
	if u.HasBadge(b.ID) {
		return false, nil
	}
	u.Badges = append(u.Badges, b)
	return true, nil
}

// SettleSession implements user.Repository.
func (s *Store) SettleSession(ctx context.Context, in user.SessionSettlement) (*user.SettlementResult, error) {
	r, err := shared.NewRating(in.Rating)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	teacher, ok := s.users[in.TeacherID]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	learner, ok := s.users[in.LearnerID]
	if !ok {
		return nil, shared.ErrUserNotFound
	}

	res := &user.SettlementResult{OldReputation: teacher.Reputation}
	if _, done := s.settled[in.SessionID]; !done {
		now := s.now()
		teacher.SessionsCompleted++
		learner.SessionsCompleted++
		teacher.Reputation = shared.RollingAverage(teacher.Reputation, teacher.ReviewCount, r)
		teacher.ReviewCount++
		teacher.UpdatedAt, learner.UpdatedAt = now, now
		s.settled[in.SessionID] = struct{}{}
		res.Applied = true
	}
	res.TeacherSessions = teacher.SessionsCompleted
	res.LearnerSessions = learner.SessionsCompleted
	res.NewReputation = teacher.Reputation
	return res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// credit.Ledger
// ══════════════════════════════════════════════════════════════════════════════

// Post implements credit.Ledger.
func (s *Store) Post(ctx context.Context, tx *credit.Transaction) (*credit.PostResult, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[tx.UserID]
	if !ok {
		return nil, shared.ErrUserNotFound
	}

	idemKey := ""
	if tx.IdempotencyKey != "" {
		idemKey = tx.UserID + "\x00" + tx.IdempotencyKey
		if prev, ok := s.idem[idemKey]; ok {
			if !prev.SameRequest(tx) {
				return nil, shared.ErrIdempotencyConflict
			}
			return &credit.PostResult{Transaction: cloneTx(prev), Balance: u.CreditBalance, Replayed: true}, nil
		}
	}

	next, err := credit.Apply(u.CreditBalance, tx)
	if err != nil {
		return nil, err
	}

	stored := cloneTx(tx)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.BalanceAfter = next

	s.txs[tx.UserID] = append(s.txs[tx.UserID], stored)
	if idemKey != "" {
		s.idem[idemKey] = stored
	}
	u.CreditBalance = next

	return &credit.PostResult{Transaction: cloneTx(stored), Balance: next}, nil
}

// Balance implements credit.Ledger.
func (s *Store) Balance(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, shared.ErrUserNotFound
	}
	return u.CreditBalance, nil
}

// ListByUser implements credit.Ledger.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*credit.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.users[userID]; !ok {
		return nil, shared.ErrUserNotFound
	}
	src := s.txs[userID]
	out := make([]*credit.Transaction, len(src))
	for i, t := range src {
		out[i] = cloneTx(t)
	}
	return out, nil
}

// cloneTx copies a transaction including its metadata, so journal entries
// never share a map with callers.
func cloneTx(t *credit.Transaction) *credit.Transaction {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	return &c
}

// Ping reports the store as healthy.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}
