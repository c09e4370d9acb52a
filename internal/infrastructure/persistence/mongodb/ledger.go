package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREDIT LEDGER IMPLEMENTATION
// A post is one multi-document transaction: the balance update on the user
// document and the journal insert commit together. Debits are conditioned on
// creditBalance >= amount, so the cached balance never goes negative.
// Concurrent posts for one user collide on the user document and the driver
// retries the loser.
// ══════════════════════════════════════════════════════════════════════════════

type txDoc struct {
	ID             string         `bson:"_id"`
	UserID         string         `bson:"userId"`
	Seq            int64          `bson:"seq"`
	Type           string         `bson:"type"`
	Amount         int            `bson:"amount"`
	Source         string         `bson:"source"`
	Description    string         `bson:"description,omitempty"`
	Metadata       map[string]any `bson:"metadata,omitempty"`
	IdempotencyKey string         `bson:"idempotencyKey,omitempty"`
	BalanceAfter   int            `bson:"balanceAfter"`
	CreatedAt      time.Time      `bson:"createdAt"`
}

func (d *txDoc) toTransaction() *credit.Transaction {
	return &credit.Transaction{
		ID:             d.ID,
		UserID:         d.UserID,
		Type:           credit.TransactionType(d.Type),
		Amount:         d.Amount,
		Source:         credit.Source(d.Source),
		Description:    d.Description,
		Metadata:       d.Metadata,
		IdempotencyKey: d.IdempotencyKey,
		BalanceAfter:   d.BalanceAfter,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}

// balanceDoc is the projection used by ledger reads and updates.
type balanceDoc struct {
	CreditBalance int   `bson:"creditBalance"`
	LedgerSeq     int64 `bson:"ledgerSeq"`
}

// LedgerRepository implements credit.Ledger for MongoDB.
type LedgerRepository struct {
	conn  *Connection
	users *mongo.Collection
	txs   *mongo.Collection
	now   func() time.Time
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	db := conn.Database()
	return &LedgerRepository{
		conn:  conn,
		users: db.Collection(CollectionUsers),
		txs:   db.Collection(CollectionTransactions),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Post implements credit.Ledger.
func (r *LedgerRepository) Post(ctx context.Context, tx *credit.Transaction) (*credit.PostResult, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	out, err := r.conn.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if tx.IdempotencyKey != "" {
			res, err := r.replay(sc, tx)
			if err != nil || res != nil {
				return res, err
			}
		}

		filter := bson.M{"_id": tx.UserID}
		if tx.Type.IsDebit() {
			filter["creditBalance"] = bson.M{"$gte": tx.Amount}
		}
		stored := *tx
		if stored.ID == "" {
			stored.ID = uuid.New().String()
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = r.now()
		}

		var bal balanceDoc
		err := r.users.FindOneAndUpdate(sc, filter,
			bson.M{
				"$inc": bson.M{"creditBalance": stored.Signed(), "ledgerSeq": 1},
				"$set": bson.M{"updatedAt": stored.CreatedAt},
			},
			options.FindOneAndUpdate().
				SetReturnDocument(options.After).
				SetProjection(bson.M{"creditBalance": 1, "ledgerSeq": 1}),
		).Decode(&bal)
		if err != nil {
			if IsNoDocuments(err) {
				return nil, r.missingOrShort(sc, tx.UserID)
			}
			return nil, storeErr("update balance", err)
		}
		stored.BalanceAfter = bal.CreditBalance

		doc := txDoc{
			ID:             stored.ID,
			UserID:         stored.UserID,
			Seq:            bal.LedgerSeq,
			Type:           string(stored.Type),
			Amount:         stored.Amount,
			Source:         string(stored.Source),
			Description:    stored.Description,
			Metadata:       stored.Metadata,
			IdempotencyKey: stored.IdempotencyKey,
			BalanceAfter:   stored.BalanceAfter,
			CreatedAt:      stored.CreatedAt,
		}
		if _, err := r.txs.InsertOne(sc, doc); err != nil {
			if IsDuplicateKey(err) {
				return nil, shared.ErrIdempotencyConflict
			}
			return nil, storeErr("insert transaction", err)
		}
		return &credit.PostResult{Transaction: &stored, Balance: bal.CreditBalance}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*credit.PostResult), nil
}

// replay returns the stored result for a repeated idempotency key, or nil
// when the key is new.
func (r *LedgerRepository) replay(sc mongo.SessionContext, tx *credit.Transaction) (*credit.PostResult, error) {
	var prev txDoc
	err := r.txs.FindOne(sc, bson.M{"userId": tx.UserID, "idempotencyKey": tx.IdempotencyKey}).Decode(&prev)
	if err != nil {
		if IsNoDocuments(err) {
			return nil, nil
		}
		return nil, storeErr("lookup idempotency key", err)
	}
	p := prev.toTransaction()
	if !p.SameRequest(tx) {
		return nil, shared.ErrIdempotencyConflict
	}
	balance, err := r.balance(sc, tx.UserID)
	if err != nil {
		return nil, err
	}
	return &credit.PostResult{Transaction: p, Balance: balance, Replayed: true}, nil
}

// missingOrShort explains why the conditional balance update matched nothing.
func (r *LedgerRepository) missingOrShort(ctx context.Context, userID string) error {
	n, err := r.users.CountDocuments(ctx, bson.M{"_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return storeErr("check user", err)
	}
	if n == 0 {
		return shared.ErrUserNotFound
	}
	return shared.ErrInsufficientBalance
}

// Balance implements credit.Ledger.
func (r *LedgerRepository) Balance(ctx context.Context, userID string) (int, error) {
	return r.balance(ctx, userID)
}

func (r *LedgerRepository) balance(ctx context.Context, userID string) (int, error) {
	var bal balanceDoc
	err := r.users.FindOne(ctx, bson.M{"_id": userID},
		options.FindOne().SetProjection(bson.M{"creditBalance": 1}),
	).Decode(&bal)
	if err != nil {
		if IsNoDocuments(err) {
			return 0, shared.ErrUserNotFound
		}
		return 0, storeErr("balance", err)
	}
	return bal.CreditBalance, nil
}

// ListByUser implements credit.Ledger. Entries come back in posting order.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string) ([]*credit.Transaction, error) {
	if _, err := r.balance(ctx, userID); err != nil {
		return nil, err
	}

	cur, err := r.txs.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, storeErr("list transactions", err)
	}
	defer cur.Close(ctx)

	out := make([]*credit.Transaction, 0)
	for cur.Next(ctx) {
		var doc txDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storeErr("decode transaction", err)
		}
		out = append(out, doc.toTransaction())
	}
	if err := cur.Err(); err != nil {
		return nil, storeErr("list transactions", err)
	}
	return out, nil
}
