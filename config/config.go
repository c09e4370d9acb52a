// Package config reads SkillSwap settings from the environment. Every key
// has a default that runs the core in memory with no external services.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// StorageBackend selects the UserProfileStore and ledger implementation.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StoragePostgres StorageBackend = "postgres"
	StorageMongo    StorageBackend = "mongo"
)

// Config is the full runtime configuration. Fields without an env tag are
// derived in Load.
type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Storage       StorageConfig
	Database      DatabaseConfig
	Mongo         MongoConfig
	Redis         RedisConfig
	Catalog       CatalogConfig
	Ledger        LedgerConfig
	Matching      MatchingConfig
	Events        EventsConfig
	Observability ObservabilityConfig

	Features *FeatureFlags
}

type AppConfig struct {
	Name        string      `env:"APP_NAME" envDefault:"skillswap-core"`
	Environment Environment `env:"APP_ENV" envDefault:"development"`
	Debug       bool        `env:"APP_DEBUG"`
	Version     string      `env:"APP_VERSION" envDefault:"0.1.0"`

	// Timezone buckets monthly earnings and streak days.
	Timezone string `env:"APP_TIMEZONE" envDefault:"UTC"`
	Location *time.Location

	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

type HTTPConfig struct {
	Addr           string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"10s"`

	// AdminToken guards penalties, special badges and rate upserts. Empty
	// turns those routes off.
	AdminToken string `env:"ADMIN_TOKEN"`
}

type StorageConfig struct {
	Backend StorageBackend `env:"STORAGE_BACKEND" envDefault:"memory"`
}

// DatabaseConfig is PostgreSQL. URL wins over the DB_* parts.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"`

	Host     string `env:"DB_HOST"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"skillswap"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	MaxConns        int           `env:"DB_MAX_CONNS" envDefault:"25"`
	MinConns        int           `env:"DB_MIN_CONNS" envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`

	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

type MongoConfig struct {
	URI      string        `env:"MONGO_URI"` // mongodb://localhost:27017/?replicaSet=rs0
	Database string        `env:"MONGO_DATABASE" envDefault:"skillswap"`
	Timeout  time.Duration `env:"MONGO_TIMEOUT" envDefault:"10s"`
}

// RedisConfig backs the rate cache, distributed ledger locks and the event
// fan-out. URL wins over Host/Port.
type RedisConfig struct {
	URL      string `env:"REDIS_URL"`
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`

	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	Disabled bool `env:"REDIS_DISABLED" envDefault:"true"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CatalogConfig points at the YAML files. Empty paths use the embedded copies.
type CatalogConfig struct {
	BadgesPath string `env:"BADGE_CATALOG_PATH"`
	RatesPath  string `env:"EARNING_RATES_PATH"`
	// SeedRates fills an empty rate store on startup.
	SeedRates bool `env:"EARNING_RATES_SEED" envDefault:"true"`
}

type LedgerConfig struct {
	LockTimeout time.Duration `env:"LEDGER_LOCK_TIMEOUT" envDefault:"5s"`
}

type MatchingConfig struct {
	PoolSize         int `env:"MATCHING_POOL_SIZE" envDefault:"200"`
	FetchConcurrency int `env:"MATCHING_FETCH_CONCURRENCY" envDefault:"4"`
}

type EventsConfig struct {
	AsyncMode      bool `env:"EVENTS_ASYNC" envDefault:"true"`
	WorkerPoolSize int  `env:"EVENTS_WORKERS" envDefault:"10"`
	Distributed    bool `env:"EVENTS_DISTRIBUTED"`
}

type ObservabilityConfig struct {
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`  // debug, info, warn, error
	LogFormat      string `env:"LOG_FORMAT" envDefault:"json"` // json, text
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load parses the environment, fills the derived fields and validates.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Storage.Backend = StorageBackend(strings.ToLower(string(cfg.Storage.Backend)))
	cfg.App.Debug = cfg.App.Debug || cfg.App.Environment == EnvDevelopment
	cfg.Database.URL = cfg.Database.connString()
	cfg.Features = LoadFeatureFlags()

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	cfg.App.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (d DatabaseConfig) connString() string {
	if d.URL != "" || d.Host == "" || d.User == "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.Storage.Backend {
	case StorageMemory:
		if c.IsProduction() {
			fail("STORAGE_BACKEND=memory is not allowed in production")
		}
	case StoragePostgres:
		if c.Database.URL == "" {
			fail("DATABASE_URL is required for the postgres backend")
		}
	case StorageMongo:
		if c.Mongo.URI == "" {
			fail("MONGO_URI is required for the mongo backend")
		}
	default:
		fail("STORAGE_BACKEND must be memory, postgres or mongo, got %q", c.Storage.Backend)
	}

	if c.Redis.Disabled {
		if c.Events.Distributed {
			fail("EVENTS_DISTRIBUTED requires Redis")
		}
		if c.Features != nil && c.Features.Enabled(FeatureLedgerDistributedLock) {
			fail("FEATURE_LEDGER_DISTRIBUTED_LOCK requires Redis")
		}
	}
	if c.Ledger.LockTimeout <= 0 {
		fail("LEDGER_LOCK_TIMEOUT must be positive")
	}
	if c.Matching.PoolSize <= 0 {
		fail("MATCHING_POOL_SIZE must be positive")
	}

	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool { return c.App.Environment == EnvDevelopment }
func (c *Config) IsProduction() bool  { return c.App.Environment == EnvProduction }
