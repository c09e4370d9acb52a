package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREDIT LEDGER IMPLEMENTATION
// Each post runs in one transaction holding the user's row lock, so the
// balance check, the ledger insert and the cached balance update are atomic.
// The non_negative_balance CHECK is the last line against overdraw.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements credit.Ledger for PostgreSQL.
type LedgerRepository struct {
	conn *Connection
	now  func() time.Time
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

const txColumns = `
	id::text, user_id, type, amount, source, description, metadata,
	COALESCE(idempotency_key, ''), balance_after, created_at
`

// Post implements credit.Ledger.
func (r *LedgerRepository) Post(ctx context.Context, tx *credit.Transaction) (*credit.PostResult, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	var result *credit.PostResult
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(dbtx pgx.Tx) error {
		var balance int
		err := dbtx.QueryRow(ctx,
			"SELECT credit_balance FROM users WHERE id = $1 FOR UPDATE", tx.UserID,
		).Scan(&balance)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrUserNotFound
			}
			return storeErr("lock balance", err)
		}

		if tx.IdempotencyKey != "" {
			prev, err := scanTransaction(dbtx.QueryRow(ctx,
				"SELECT "+txColumns+" FROM credit_transactions WHERE user_id = $1 AND idempotency_key = $2",
				tx.UserID, tx.IdempotencyKey,
			))
			switch {
			case err == nil:
				if !prev.SameRequest(tx) {
					return shared.ErrIdempotencyConflict
				}
				result = &credit.PostResult{Transaction: prev, Balance: balance, Replayed: true}
				return nil
			case !IsNoRows(err):
				return storeErr("lookup idempotency key", err)
			}
		}

		next, err := credit.Apply(balance, tx)
		if err != nil {
			return err
		}

		stored := *tx
		if stored.ID == "" {
			stored.ID = uuid.New().String()
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = r.now()
		}
		stored.BalanceAfter = next

		meta, err := json.Marshal(metadataOrEmpty(stored.Metadata))
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		_, err = dbtx.Exec(ctx, `
			INSERT INTO credit_transactions (
				id, user_id, type, amount, source, description, metadata,
				idempotency_key, balance_after, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		`,
			stored.ID,
			stored.UserID,
			string(stored.Type),
			stored.Amount,
			string(stored.Source),
			stored.Description,
			meta,
			stored.IdempotencyKey,
			stored.BalanceAfter,
			stored.CreatedAt,
		)
		if err != nil {
			if IsCheckViolation(err) {
				return shared.ErrInsufficientBalance
			}
			return storeErr("insert transaction", err)
		}

		_, err = dbtx.Exec(ctx,
			"UPDATE users SET credit_balance = $1, updated_at = $2 WHERE id = $3",
			next, stored.CreatedAt, stored.UserID,
		)
		if err != nil {
			if IsCheckViolation(err) {
				return shared.ErrInsufficientBalance
			}
			return storeErr("update balance", err)
		}

		result = &credit.PostResult{Transaction: &stored, Balance: next}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Balance implements credit.Ledger.
func (r *LedgerRepository) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := r.conn.QueryRow(ctx, "SELECT credit_balance FROM users WHERE id = $1", userID).Scan(&balance)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrUserNotFound
		}
		return 0, storeErr("balance", err)
	}
	return balance, nil
}

// ListByUser implements credit.Ledger.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string) ([]*credit.Transaction, error) {
	var exists bool
	if err := r.conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists); err != nil {
		return nil, storeErr("check user", err)
	}
	if !exists {
		return nil, shared.ErrUserNotFound
	}

	rows, err := r.conn.Query(ctx,
		"SELECT "+txColumns+" FROM credit_transactions WHERE user_id = $1 ORDER BY created_at, id",
		userID,
	)
	if err != nil {
		return nil, storeErr("list transactions", err)
	}
	defer rows.Close()

	out := make([]*credit.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, storeErr("scan transaction", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*credit.Transaction, error) {
	var (
		t      credit.Transaction
		txType string
		source string
		meta   []byte
	)
	err := row.Scan(&t.ID, &t.UserID, &txType, &t.Amount, &source, &t.Description, &meta,
		&t.IdempotencyKey, &t.BalanceAfter, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Type = credit.TransactionType(txType)
	t.Source = credit.Source(source)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &t, nil
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
