package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skillswap-hub/skillswap-core/config"
	"github.com/skillswap-hub/skillswap-core/internal/application/command"
	"github.com/skillswap-hub/skillswap-core/internal/application/eventhandler"
	"github.com/skillswap-hub/skillswap-core/internal/application/query"
	"github.com/skillswap-hub/skillswap-core/internal/application/saga"
	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/matching"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/catalog"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/messaging"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/metrics"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/persistence/redis"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/service"
	apihttp "github.com/skillswap-hub/skillswap-core/internal/interface/http"
	"github.com/skillswap-hub/skillswap-core/internal/interface/http/handlers"
	"github.com/skillswap-hub/skillswap-core/pkg/circuitbreaker"
	"github.com/skillswap-hub/skillswap-core/pkg/keylock"
	"github.com/skillswap-hub/skillswap-core/pkg/logger"
	"github.com/skillswap-hub/skillswap-core/pkg/retry"
)

// eventBus is what the app needs from either bus implementation.
type eventBus interface {
	shared.EventBus
	Drain()
	Close() error
}

// App holds the wired core.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Stores  *Stores
	Metrics *metrics.Recorder

	Bus        shared.EventBus
	Dispatcher *messaging.Dispatcher
	RateTable  *service.RateTableService

	// Write side
	Profiles        *command.ProfileHandler
	Ledger          *command.LedgerService
	CompleteSession *command.CompleteSessionHandler
	Streaks         *command.ApplyDailyStreakHandler
	VerifySkill     *command.VerifySkillHandler
	Contributions   *command.RecordContributionHandler
	UpsertRates     *command.UpsertEarningRatesHandler
	Badges          *saga.BadgeAwardFlow

	// Read side
	Matches      *query.ComputeMatchesHandler
	SOS          *query.SOSHandler
	EarningStats *query.GetEarningStatsHandler

	Health *handlers.CompositeHealthChecker

	bus   eventBus
	cache *redis.Cache
}

// New opens the stores and wires every handler.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	stores, err := OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a, err := Build(ctx, cfg, log, stores)
	if err != nil {
		stores.Close()
		return nil, err
	}
	return a, nil
}

// Build wires the core on top of already opened stores.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger, stores *Stores) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{
		Config:  cfg,
		Logger:  log,
		Stores:  stores,
		Metrics: metrics.NewRecorder(),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Redis.Disabled {
		rc := redis.DefaultConfig()
		rc.URL = cfg.Redis.URL
		rc.Addr = cfg.Redis.Addr()
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.PoolSize > 0 {
			rc.PoolSize = cfg.Redis.PoolSize
		}
		if cfg.Redis.DialTimeout > 0 {
			rc.DialTimeout = cfg.Redis.DialTimeout
		}
		cache, err := connectRedis(ctx, rc, log)
		if err != nil {
			return nil, err
		}
		a.cache = cache
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.InMemoryEventBusConfig{
		AsyncMode:      cfg.Events.AsyncMode,
		WorkerPoolSize: cfg.Events.WorkerPoolSize,
		Logger:         log,
		Observer:       a.Metrics,
	}
	if cfg.Events.Distributed && a.cache != nil {
		bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewGoRedisClient(a.cache.Client()),
			LocalBusConfig: busCfg,
			Logger:         log,
		})
		if err != nil {
			a.closeRuntime()
			return nil, fmt.Errorf("redis event bus: %w", err)
		}
		a.bus = bus
	} else {
		a.bus = messaging.NewInMemoryEventBus(busCfg)
	}
	a.Bus = a.bus

	a.Dispatcher = messaging.NewDispatcher(a.bus, log, 100)
	a.Dispatcher.Use(
		messaging.RecoveryMiddleware(log),
		messaging.LoggingMiddleware(log),
		messaging.RetryMiddleware(retry.DatabaseRetrier()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. CATALOGS
	// ─────────────────────────────────────────────────────────────────────────
	badges, err := catalog.LoadBadges(cfg.Catalog.BadgesPath)
	if err != nil {
		a.closeRuntime()
		return nil, fmt.Errorf("badge catalog: %w", err)
	}

	var rateCache service.RateCacheStore
	if a.cache != nil {
		breaker := circuitbreaker.CacheBreaker("redis-rates", a.Metrics.BreakerStateChanged)
		rateCache = redis.NewRateCache(a.cache, breaker)
	}
	a.RateTable = service.NewRateTableService(stores.Rates, rateCache, log)
	if cfg.Catalog.SeedRates {
		seeds, err := catalog.LoadRates(cfg.Catalog.RatesPath)
		if err != nil {
			a.closeRuntime()
			return nil, fmt.Errorf("earning rates: %w", err)
		}
		n, err := a.RateTable.SeedIfEmpty(ctx, seeds)
		if err != nil {
			a.closeRuntime()
			return nil, fmt.Errorf("seed earning rates: %w", err)
		}
		if n > 0 {
			log.Info("earning rates seeded", "count", n)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	features := cfg.Features
	if features == nil {
		features = config.LoadFeatureFlags()
	}
	policy := credit.DefaultRewardPolicy()

	var locker shared.UserLocker = keylock.New()
	if features.Enabled(config.FeatureLedgerDistributedLock) && a.cache != nil {
		locker = redis.NewUserLock(a.cache)
	}

	a.Ledger = command.NewLedgerService(stores.Ledger, locker, a.bus, a.Metrics, log,
		command.LedgerConfig{LockTimeout: cfg.Ledger.LockTimeout})
	a.Profiles = command.NewProfileHandler(stores.Users, a.bus, log)
	a.CompleteSession = command.NewCompleteSessionHandler(stores.Users, a.RateTable, a.Ledger, policy, a.bus, log)
	if features.Enabled(config.FeatureRewardsStreaks) {
		a.Streaks = command.NewApplyDailyStreakHandler(a.Ledger, policy, log).
			WithLocation(cfg.App.Location).
			WithEligibility(func(userID string) bool {
				return features.IsEnabledFor(config.FeatureRewardsStreaks, userID)
			})
	}
	a.VerifySkill = command.NewVerifySkillHandler(stores.Users, a.RateTable, a.Ledger, policy, log)
	a.Contributions = command.NewRecordContributionHandler(a.Ledger, policy)
	a.UpsertRates = command.NewUpsertEarningRatesHandler(stores.Rates, a.RateTable, a.bus, log)

	a.Badges, err = saga.NewBadgeAwardFlowBuilder().
		WithUsers(stores.Users).
		WithCatalog(badges).
		WithRewards(a.Ledger).
		WithPolicy(policy).
		WithPublisher(a.bus).
		WithMetrics(a.Metrics).
		WithLogger(log).
		WithConfig(saga.BadgeAwardConfig{Incremental: features.Enabled(config.FeatureBadgesIncremental)}).
		Build()
	if err != nil {
		a.closeRuntime()
		return nil, err
	}
	if err := eventhandler.NewBadgeTriggerHandler(a.Badges, log).Subscribe(a.Dispatcher); err != nil {
		a.closeRuntime()
		return nil, fmt.Errorf("subscribe badge trigger: %w", err)
	}

	engineOpts := []matching.Option{}
	if !features.Enabled(config.FeatureMatchingParallel) {
		engineOpts = append(engineOpts, matching.WithParallelism(0, 0))
	}
	engine := matching.NewEngine(engineOpts...)
	a.Matches = query.NewComputeMatchesHandler(stores.Users, engine, a.Metrics, log, query.ComputeMatchesConfig{
		PoolSize:         cfg.Matching.PoolSize,
		FetchConcurrency: cfg.Matching.FetchConcurrency,
	})
	a.SOS = query.NewSOSHandler(stores.Users, engine, a.Metrics, log)
	a.EarningStats = query.NewGetEarningStatsHandler(stores.Ledger)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HEALTH
	// ─────────────────────────────────────────────────────────────────────────
	a.Health = handlers.NewCompositeHealthChecker(cfg.App.Version)
	// Store pings go through a breaker so /ready fails fast while the
	// database is down.
	dbBreaker := circuitbreaker.DatabaseBreaker(a.Metrics.BreakerStateChanged)
	a.Health.AddCheck(string(stores.Backend), func(ctx context.Context) error {
		return dbBreaker.Execute(ctx, stores.Ping)
	})
	if a.cache != nil {
		a.Health.AddCheck("redis", a.cache.Ping)
	}
	a.Health.AddCheck("earning_rates", func(ctx context.Context) error {
		_, err := a.RateTable.Current(ctx)
		return err
	})

	return a, nil
}

func connectRedis(ctx context.Context, rc redis.Config, log *slog.Logger) (*redis.Cache, error) {
	var cache *redis.Cache
	err := retry.StartupRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("redis not ready, retrying", "attempt", attempt, "delay", delay, "error", err)
	}).Do(ctx, func(ctx context.Context) error {
		c, err := redis.NewCache(ctx, rc)
		if err != nil {
			return err
		}
		cache = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return cache, nil
}

// HTTPServer builds the API server on top of the wired handlers.
func (a *App) HTTPServer(httpLog *logger.Logger) *apihttp.Server {
	cfg := apihttp.DefaultConfig()
	cfg.Addr = a.Config.HTTP.Addr
	cfg.ReadTimeout = a.Config.HTTP.ReadTimeout
	cfg.WriteTimeout = a.Config.HTTP.WriteTimeout
	cfg.IdleTimeout = a.Config.HTTP.IdleTimeout
	cfg.RequestTimeout = a.Config.HTTP.RequestTimeout
	cfg.AdminToken = a.Config.HTTP.AdminToken
	cfg.Location = a.Config.App.Location

	deps := apihttp.Dependencies{
		Profiles:        a.Profiles,
		Ledger:          a.Ledger,
		CompleteSession: a.CompleteSession,
		Streaks:         a.Streaks,
		VerifySkill:     a.VerifySkill,
		Contributions:   a.Contributions,
		UpsertRates:     a.UpsertRates,
		Badges:          a.Badges,
		Users:           a.Stores.Users,
		Journal:         a.Stores.Ledger,
		Rates:           a.Stores.Rates,
		Matches:         a.Matches,
		SOS:             a.SOS,
		EarningStats:    a.EarningStats,
		Logger:          httpLog,
		Health:          a.Health,
		Observer:        a.Metrics,
	}
	if a.Config.Observability.MetricsEnabled {
		deps.Metrics = a.Metrics.Handler()
	}
	return apihttp.NewServer(cfg, deps)
}

// Drain waits for queued async event handlers. Used by skillctl before exit.
func (a *App) Drain() {
	if a.bus != nil {
		a.bus.Drain()
	}
}

// Close stops the bus and releases connections.
func (a *App) Close() {
	a.closeRuntime()
	a.Stores.Close()
}

func (a *App) closeRuntime() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.Logger.Warn("close event bus", "error", err)
		}
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
}
