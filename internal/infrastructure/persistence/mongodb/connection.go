// Package mongodb implements the user profile store, the credit ledger and the
// earning-rate repository on MongoDB. Ledger posts run inside multi-document
// transactions, so the server must be a replica set member.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// Collection names.
const (
	CollectionUsers        = "users"
	CollectionTransactions = "credit_transactions"
	CollectionRates        = "skill_earning_rates"
	CollectionSettled      = "settled_sessions"
)

// Config contains connection settings.
type Config struct {
	URI string

	// Database defaults to the path of the URI, then "skillswap".
	Database string

	// Timeout bounds connect and ping.
	Timeout time.Duration
}

// Connection wraps the client and the selected database.
type Connection struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and pings the primary.
func Connect(ctx context.Context, cfg Config) (*Connection, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, unavailable("connect", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, unavailable("ping", err)
	}

	name := cfg.Database
	if name == "" {
		name = databaseFromURI(cfg.URI)
	}
	return &Connection{client: client, db: client.Database(name)}, nil
}

// databaseFromURI parses the database name from the URI path.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "skillswap"
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return "skillswap"
}

// Database returns the selected database.
func (c *Connection) Database() *mongo.Database {
	return c.db
}

// Ping checks the primary is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *Connection) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on. Idempotent.
func (c *Connection) EnsureIndexes(ctx context.Context) error {
	users := []mongo.IndexModel{
		{Keys: bson.D{{Key: "offeredKeys", Value: 1}}},
		{Keys: bson.D{{Key: "wantedKeys", Value: 1}}},
		{Keys: bson.D{{Key: "availability.status", Value: 1}, {Key: "reputation", Value: -1}}},
		{Keys: bson.D{{Key: "lastActiveAt", Value: -1}, {Key: "_id", Value: 1}}},
	}
	if _, err := c.db.Collection(CollectionUsers).Indexes().CreateMany(ctx, users); err != nil {
		return storeErr("create user indexes", err)
	}

	txs := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "seq", Value: 1}}},
		{
			// One transaction per (user, idempotency key); entries without a key are not indexed.
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "idempotencyKey", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"idempotencyKey": bson.M{"$type": "string", "$gt": ""}}),
		},
	}
	if _, err := c.db.Collection(CollectionTransactions).Indexes().CreateMany(ctx, txs); err != nil {
		return storeErr("create ledger indexes", err)
	}

	// Creates the collection before any settlement transaction runs.
	settled := mongo.IndexModel{Keys: bson.D{{Key: "teacherId", Value: 1}}}
	if _, err := c.db.Collection(CollectionSettled).Indexes().CreateOne(ctx, settled); err != nil {
		return storeErr("create settlement indexes", err)
	}
	return nil
}

// withTransaction runs fn inside a session transaction. The driver retries
// fn on transient transaction errors.
func (c *Connection) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	sess, err := c.client.StartSession()
	if err != nil {
		return nil, unavailable("start session", err)
	}
	defer sess.EndSession(ctx)
	return sess.WithTransaction(ctx, fn)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// IsDuplicateKey checks for a unique index violation.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsNoDocuments checks for an empty single-document result.
func IsNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func unavailable(op string, err error) error {
	return shared.WrapError("mongodb", op, shared.ErrServiceUnavailable, "database unavailable", err)
}

// storeErr wraps a driver error; network errors and timeouts become retryable.
func storeErr(op string, err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return unavailable(op, err)
	}
	return fmt.Errorf("mongodb: %s: %w", op, err)
}
