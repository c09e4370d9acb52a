package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-core/config"
	"github.com/skillswap-hub/skillswap-core/internal/application/command"
	"github.com/skillswap-hub/skillswap-core/internal/application/query"
)

func testConfig() *config.Config {
	return &config.Config{
		App:     config.AppConfig{Name: "skillswap-test", Version: "test", Location: time.UTC},
		HTTP:    config.HTTPConfig{Addr: ":0", AdminToken: "secret"},
		Storage: config.StorageConfig{Backend: config.StorageMemory},
		Redis:   config.RedisConfig{Disabled: true},
		Catalog: config.CatalogConfig{SeedRates: true},
		Ledger:  config.LedgerConfig{LockTimeout: time.Second},
		Matching: config.MatchingConfig{
			PoolSize:         200,
			FetchConcurrency: 4,
		},
		// Synchronous delivery so badge rewards land before the call returns.
		Events:        config.EventsConfig{AsyncMode: false},
		Features:      config.LoadFeatureFlags(),
		Observability: config.ObservabilityConfig{MetricsEnabled: true},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "cassandra"

	_, err := New(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestApp_SessionSettlesAndAwardsFirstBadge(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	for _, id := range []string{"teacher", "learner"} {
		_, err := a.Profiles.Create(ctx, command.CreateUserCommand{ID: id, Offered: []string{"Guitar"}})
		require.NoError(t, err)
	}

	res, err := a.CompleteSession.Handle(ctx, command.CompleteSessionCommand{
		SessionID:       "s-1",
		TeacherID:       "teacher",
		LearnerID:       "learner",
		Skill:           "Guitar",
		Rating:          3,
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, 25, res.TeacherReward)
	assert.False(t, res.UnknownSkill)

	teacher, err := a.Stores.Users.GetByID(ctx, "teacher")
	require.NoError(t, err)
	assert.True(t, teacher.HasBadge("first_session"))
	// 25 за сессию и 5 за значок first_session.
	assert.Equal(t, 30, teacher.CreditBalance)

	learner, err := a.Stores.Users.GetByID(ctx, "learner")
	require.NoError(t, err)
	assert.True(t, learner.HasBadge("first_session"))
	assert.Equal(t, 10, learner.CreditBalance)

	stats, err := a.EarningStats.Handle(ctx, query.GetEarningStatsQuery{UserID: "teacher"})
	require.NoError(t, err)
	assert.Equal(t, 30, stats.TotalEarned)

	again, err := a.CompleteSession.Handle(ctx, command.CompleteSessionCommand{
		SessionID:       "s-1",
		TeacherID:       "teacher",
		LearnerID:       "learner",
		Skill:           "Guitar",
		Rating:          3,
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.True(t, again.Replayed)

	balance, err := a.Ledger.Balance(ctx, "teacher")
	require.NoError(t, err)
	assert.Equal(t, 30, balance)
}

func TestApp_HealthIsGreen(t *testing.T) {
	a := newTestApp(t, testConfig())

	status := a.Health.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Contains(t, status.Checks, "memory")
	assert.Contains(t, status.Checks, "earning_rates")
	assert.NotContains(t, status.Checks, "redis")
}

func TestApp_StreaksFollowFeatureFlag(t *testing.T) {
	cfg := testConfig()
	a := newTestApp(t, cfg)
	assert.NotNil(t, a.Streaks)

	cfg = testConfig()
	require.NoError(t, cfg.Features.SetRolloutPercent(config.FeatureRewardsStreaks, 0))
	b := newTestApp(t, cfg)
	assert.Nil(t, b.Streaks)
}

func TestApp_SeedsRatesOnce(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	rates, err := a.Stores.Rates.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rates)

	table, err := a.RateTable.Current(ctx)
	require.NoError(t, err)
	r, ok := table.Lookup("guitar")
	require.True(t, ok)
	assert.Equal(t, 25, r.BaseRate)
}
