//go:build container

package mongodb

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// setupMongo starts a single-node replica set; transactions need one.
func setupMongo(t *testing.T) *Connection {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		Cmd:          []string{"--replSet", "rs0", "--bind_ip_all"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	code, _, err := container.Exec(ctx, []string{
		"mongosh", "--quiet", "--eval",
		`rs.initiate({_id: "rs0", members: [{_id: 0, host: "localhost:27017"}]})`,
	})
	require.NoError(t, err)
	require.Equal(t, 0, code)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	uri := fmt.Sprintf("mongodb://%s:%s/skillswap_test?directConnection=true", host, port.Port())

	var conn *Connection
	require.Eventually(t, func() bool {
		c, err := Connect(ctx, Config{URI: uri, Timeout: 5 * time.Second})
		if err != nil {
			return false
		}
		// The node accepts writes once it has been elected primary.
		if err := c.EnsureIndexes(ctx); err != nil {
			_ = c.Close(ctx)
			return false
		}
		conn = c
		return true
	}, 60*time.Second, time.Second)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	return conn
}

func TestMongo_Store(t *testing.T) {
	conn := setupMongo(t)
	users := NewUserRepository(conn)
	ledger := NewLedgerRepository(conn)
	ctx := context.Background()

	newUser := func(id, location string, offered ...string) {
		u, err := user.NewUser(user.NewUserParams{
			ID:       id,
			Skills:   user.Skills{Offered: offered, Wanted: []string{"Spanish"}},
			Location: location,
			Status:   user.StatusAvailable,
		})
		require.NoError(t, err)
		require.NoError(t, users.Create(ctx, u))
	}
	newUser("alice", "Almaty", "Go", "Guitar")
	newUser("bob", "Astana", "go")

	t.Run("create twice", func(t *testing.T) {
		u, err := user.NewUser(user.NewUserParams{ID: "alice"})
		require.NoError(t, err)
		assert.ErrorIs(t, users.Create(ctx, u), shared.ErrUserAlreadyExists)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := users.GetByID(ctx, "nobody")
		assert.ErrorIs(t, err, shared.ErrUserNotFound)
	})

	t.Run("search is case insensitive", func(t *testing.T) {
		found, err := users.Search(ctx, user.Filter{OffersSkill: "GO", Location: "almaty"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "alice", found[0].ID)
		assert.Equal(t, []string{"Go", "Guitar"}, found[0].Skills.Offered)

		found, err = users.FindBySkill(ctx, "go", 10)
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})

	t.Run("update keeps owned fields", func(t *testing.T) {
		u, err := users.GetByID(ctx, "bob")
		require.NoError(t, err)
		u.DisplayName = "Bobby"
		u.SessionsCompleted = 99
		require.NoError(t, users.Update(ctx, u))

		got, err := users.GetByID(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "Bobby", got.DisplayName)
		assert.Equal(t, 0, got.SessionsCompleted)
	})

	t.Run("atomic counters", func(t *testing.T) {
		n, err := users.IncrementSessions(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		old, next, err := users.ApplyRating(ctx, "bob", 4)
		require.NoError(t, err)
		assert.Equal(t, 0.0, old)
		assert.Equal(t, 4.0, next)

		_, next, err = users.ApplyRating(ctx, "bob", 5)
		require.NoError(t, err)
		assert.Equal(t, 4.5, next)
	})

	t.Run("settle session once", func(t *testing.T) {
		in := user.SessionSettlement{SessionID: "s-1", TeacherID: "alice", LearnerID: "bob", Rating: 5}
		res, err := users.SettleSession(ctx, in)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, 1, res.TeacherSessions)
		assert.Equal(t, 2, res.LearnerSessions)
		assert.Equal(t, 5.0, res.NewReputation)

		res, err = users.SettleSession(ctx, in)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, 1, res.TeacherSessions)
		assert.Equal(t, 2, res.LearnerSessions)

		_, err = users.SettleSession(ctx, user.SessionSettlement{SessionID: "s-2", TeacherID: "alice", LearnerID: "ghost", Rating: 5})
		assert.ErrorIs(t, err, shared.ErrUserNotFound)

		alice, err := users.GetByID(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 1, alice.SessionsCompleted)
		assert.Equal(t, 1, alice.ReviewCount)
	})

	t.Run("append badge once", func(t *testing.T) {
		b := user.Badge{ID: "first_session", Name: "First Session", EarnedAt: time.Now().UTC()}
		added, err := users.AppendBadge(ctx, "bob", b)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = users.AppendBadge(ctx, "bob", b)
		require.NoError(t, err)
		assert.False(t, added)

		_, err = users.AppendBadge(ctx, "nobody", b)
		assert.ErrorIs(t, err, shared.ErrUserNotFound)
	})

	t.Run("ledger post and idempotency", func(t *testing.T) {
		earn := &credit.Transaction{
			UserID: "alice", Type: credit.TypeEarned, Amount: 100,
			Source: credit.SourceSessionTeaching, IdempotencyKey: "session:s1:teacher",
			Metadata: map[string]any{"skill": "Go"},
		}
		res, err := ledger.Post(ctx, earn)
		require.NoError(t, err)
		assert.Equal(t, 100, res.Balance)
		assert.Equal(t, 100, res.Transaction.BalanceAfter)

		again, err := ledger.Post(ctx, earn)
		require.NoError(t, err)
		assert.True(t, again.Replayed)
		assert.Equal(t, res.Transaction.ID, again.Transaction.ID)

		conflict := *earn
		conflict.Amount = 5
		_, err = ledger.Post(ctx, &conflict)
		assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)

		_, err = ledger.Post(ctx, &credit.Transaction{
			UserID: "nobody", Type: credit.TypeBonus, Amount: 1, Source: credit.SourceReferral,
		})
		assert.ErrorIs(t, err, shared.ErrUserNotFound)
	})

	t.Run("concurrent spends never overdraw", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 15; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = ledger.Post(ctx, &credit.Transaction{
					UserID: "alice", Type: credit.TypeSpent, Amount: 10, Source: credit.SourceSessionBooking,
				})
			}()
		}
		wg.Wait()

		balance, err := ledger.Balance(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 0, balance)

		_, err = ledger.Post(ctx, &credit.Transaction{
			UserID: "alice", Type: credit.TypeSpent, Amount: 1, Source: credit.SourceSessionBooking,
		})
		assert.ErrorIs(t, err, shared.ErrInsufficientBalance)

		txs, err := ledger.ListByUser(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, txs, 11)
		assert.Equal(t, balance, credit.Replay(txs))
		for i := 1; i < len(txs); i++ {
			assert.Equal(t, txs[i-1].BalanceAfter+txs[i].Signed(), txs[i].BalanceAfter)
		}
	})
}

func TestMongo_Rates(t *testing.T) {
	conn := setupMongo(t)
	repo := NewRateRepository(conn)
	ctx := context.Background()

	n, err := repo.UpsertBatch(ctx, []rate.SkillEarningRate{
		{SkillName: "Python", Category: "programming", BaseRate: 50},
		{SkillName: "Guitar", Category: "Music", BaseRate: 30, DemandMultiplier: 1.2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.UpsertBatch(ctx, []rate.SkillEarningRate{{SkillName: "python", BaseRate: 55}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.UpsertBatch(ctx, []rate.SkillEarningRate{{SkillName: "Drums", BaseRate: 0}})
	assert.ErrorIs(t, err, shared.ErrInvalidEarningRate)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Guitar", all[0].SkillName)
	assert.Equal(t, 1.2, all[0].DemandMultiplier)
	assert.Equal(t, 55, all[1].BaseRate)
	assert.Equal(t, rate.CategoryOther, all[1].Category)
}
