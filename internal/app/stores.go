// Package app wires the SkillSwap core from configuration. cmd/api and
// cmd/skillctl share it so both surfaces run the same handlers on the same
// stores.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skillswap-hub/skillswap-core/config"
	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/persistence/memory"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/persistence/mongodb"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/persistence/postgres"
	"github.com/skillswap-hub/skillswap-core/pkg/retry"
)

// Stores groups the repositories of one backend.
type Stores struct {
	Backend config.StorageBackend

	Users  user.Repository
	Ledger credit.Ledger
	Rates  rate.Repository

	ping    func(ctx context.Context) error
	migrate func(ctx context.Context) (int, error)
	close   func()
}

// Ping checks the backing store.
func (s *Stores) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Migrate brings the schema up to date. It returns the number of applied
// steps; the memory backend has none.
func (s *Stores) Migrate(ctx context.Context) (int, error) {
	if s.migrate == nil {
		return 0, nil
	}
	return s.migrate(ctx)
}

// Close releases connections.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores connects to the configured backend. Connections are retried
// while the store boots; migrations run when DB_AUTO_MIGRATE is set.
func OpenStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Stores, error) {
	onRetry := func(attempt int, err error, delay time.Duration) {
		log.Warn("store not ready, retrying",
			"backend", cfg.Storage.Backend,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}

	var (
		stores *Stores
		err    error
	)
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		stores = openMemory()
	case config.StoragePostgres:
		stores, err = openPostgres(ctx, cfg.Database, onRetry)
	case config.StorageMongo:
		stores, err = openMongo(ctx, cfg.Mongo, onRetry)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		applied, err := stores.Migrate(ctx)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema up to date", "backend", stores.Backend, "applied", applied)
	}
	return stores, nil
}

func openMemory() *Stores {
	store := memory.NewStore()
	return &Stores{
		Backend: config.StorageMemory,
		Users:   store,
		Ledger:  store,
		Rates:   memory.NewRateRepository(),
		ping:    store.Ping,
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, onRetry func(int, error, time.Duration)) (*Stores, error) {
	// Zero values keep the pool defaults.
	opts := postgres.PoolOptions{
		MaxConns:        int32(max(cfg.MaxConns, 0)),
		MinConns:        int32(max(cfg.MinConns, 0)),
		MaxConnLifetime: max(cfg.ConnMaxLifetime, 0),
		MaxConnIdleTime: max(cfg.ConnMaxIdleTime, 0),
	}

	var conn *postgres.Connection
	err := retry.StartupRetrier(onRetry).Do(ctx, func(ctx context.Context) error {
		c, err := postgres.Connect(ctx, cfg.URL, opts)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Stores{
		Backend: config.StoragePostgres,
		Users:   postgres.NewUserRepository(conn),
		Ledger:  postgres.NewLedgerRepository(conn),
		Rates:   postgres.NewRateRepository(conn),
		ping:    conn.Ping,
		migrate: postgres.NewMigrator(conn).Migrate,
		close:   conn.Close,
	}, nil
}

func openMongo(ctx context.Context, cfg config.MongoConfig, onRetry func(int, error, time.Duration)) (*Stores, error) {
	var conn *mongodb.Connection
	err := retry.StartupRetrier(onRetry).Do(ctx, func(ctx context.Context) error {
		c, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.URI, Database: cfg.Database, Timeout: cfg.Timeout})
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	return &Stores{
		Backend: config.StorageMongo,
		Users:   mongodb.NewUserRepository(conn),
		Ledger:  mongodb.NewLedgerRepository(conn),
		Rates:   mongodb.NewRateRepository(conn),
		ping:    conn.Ping,
		migrate: func(ctx context.Context) (int, error) {
			if err := conn.EnsureIndexes(ctx); err != nil {
				return 0, err
			}
			return 0, nil
		},
		close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = conn.Close(ctx)
		},
	}, nil
}
