// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER SERVICE
// Every credit mutation goes through here: per-user serialization, idempotency,
// metrics and the credits.earned / credits.spent events.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerMetrics records ledger outcomes.
type LedgerMetrics interface {
	TransactionPosted(txType, source string, amount int)
	TransactionRejected(reason string)
}

type nopLedgerMetrics struct{}

func (nopLedgerMetrics) TransactionPosted(string, string, int) {}
func (nopLedgerMetrics) TransactionRejected(string)            {}

// AddCreditsCommand credits a user's balance.
type AddCreditsCommand struct {
	UserID string

	// Type is earned or bonus. Empty means earned.
	Type credit.TransactionType

	Amount      int
	Source      credit.Source
	Description string
	Metadata    map[string]any

	// IdempotencyKey makes retries safe. Optional.
	IdempotencyKey string

	CorrelationID string
}

// Validate validates the command.
func (c AddCreditsCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	switch c.Type {
	case "", credit.TypeEarned, credit.TypeBonus:
	default:
		return fmt.Errorf("add_credits: %w: %s", shared.ErrInvalidTxType, c.Type)
	}
	if c.Amount <= 0 {
		return shared.ErrInvalidAmount
	}
	if !c.Source.IsValid() {
		return shared.ErrInvalidSource
	}
	return nil
}

// SpendCreditsCommand debits a user's balance.
type SpendCreditsCommand struct {
	UserID         string
	Amount         int
	Source         credit.Source
	Description    string
	Metadata       map[string]any
	IdempotencyKey string
	CorrelationID  string
}

// Validate validates the command.
func (c SpendCreditsCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if c.Amount <= 0 {
		return shared.ErrInvalidAmount
	}
	if !c.Source.IsValid() {
		return shared.ErrInvalidSource
	}
	return nil
}

// PenaltyCommand is the administrative debit. It is the only producer of
// penalty transactions.
type PenaltyCommand struct {
	UserID         string
	Amount         int
	Reason         string
	IdempotencyKey string
	CorrelationID  string
}

// Validate validates the command.
func (c PenaltyCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if c.Amount <= 0 {
		return shared.ErrInvalidAmount
	}
	if strings.TrimSpace(c.Reason) == "" {
		return errors.New("penalize: reason is required")
	}
	return nil
}

// LedgerConfig contains configuration for the ledger service.
type LedgerConfig struct {
	// LockTimeout bounds the wait for the per-user lock.
	LockTimeout time.Duration
}

// DefaultLedgerConfig returns default configuration.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{LockTimeout: 5 * time.Second}
}

// LedgerService posts transactions to the credit ledger.
type LedgerService struct {
	ledger    credit.Ledger
	locker    shared.UserLocker
	publisher shared.EventPublisher
	metrics   LedgerMetrics
	logger    *slog.Logger

	lockTimeout time.Duration
}

// NewLedgerService creates a new LedgerService. locker, publisher and metrics may be nil.
func NewLedgerService(
	ledger credit.Ledger,
	locker shared.UserLocker,
	publisher shared.EventPublisher,
	metrics LedgerMetrics,
	logger *slog.Logger,
	config LedgerConfig,
) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if metrics == nil {
		metrics = nopLedgerMetrics{}
	}
	if config.LockTimeout <= 0 {
		config = DefaultLedgerConfig()
	}

	return &LedgerService{
		ledger:      ledger,
		locker:      locker,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger.With("handler", "ledger"),
		lockTimeout: config.LockTimeout,
	}
}

// AddCredits appends an earned or bonus transaction and increments the balance.
func (s *LedgerService) AddCredits(ctx context.Context, cmd AddCreditsCommand) (*credit.PostResult, error) {
	if err := cmd.Validate(); err != nil {
		s.metrics.TransactionRejected("validation")
		return nil, err
	}
	txType := cmd.Type
	if txType == "" {
		txType = credit.TypeEarned
	}

	return s.post(ctx, &credit.Transaction{
		UserID:         cmd.UserID,
		Type:           txType,
		Amount:         cmd.Amount,
		Source:         cmd.Source,
		Description:    cmd.Description,
		Metadata:       cmd.Metadata,
		IdempotencyKey: cmd.IdempotencyKey,
	}, cmd.CorrelationID)
}

// SpendCredits appends a spent transaction only if the balance covers it.
// Returns ErrInsufficientBalance otherwise; the balance is left unchanged.
func (s *LedgerService) SpendCredits(ctx context.Context, cmd SpendCreditsCommand) (*credit.PostResult, error) {
	if err := cmd.Validate(); err != nil {
		s.metrics.TransactionRejected("validation")
		return nil, err
	}

	return s.post(ctx, &credit.Transaction{
		UserID:         cmd.UserID,
		Type:           credit.TypeSpent,
		Amount:         cmd.Amount,
		Source:         cmd.Source,
		Description:    cmd.Description,
		Metadata:       cmd.Metadata,
		IdempotencyKey: cmd.IdempotencyKey,
	}, cmd.CorrelationID)
}

// Penalize debits a user administratively. Like SpendCredits it never
// drives the balance below zero.
func (s *LedgerService) Penalize(ctx context.Context, cmd PenaltyCommand) (*credit.PostResult, error) {
	if err := cmd.Validate(); err != nil {
		s.metrics.TransactionRejected("validation")
		return nil, err
	}

	return s.post(ctx, &credit.Transaction{
		UserID:         cmd.UserID,
		Type:           credit.TypePenalty,
		Amount:         cmd.Amount,
		Source:         credit.SourceAdminAdjustment,
		Description:    cmd.Reason,
		IdempotencyKey: cmd.IdempotencyKey,
	}, cmd.CorrelationID)
}

// Balance returns the cached balance.
func (s *LedgerService) Balance(ctx context.Context, userID string) (int, error) {
	return s.ledger.Balance(ctx, userID)
}

func (s *LedgerService) post(ctx context.Context, tx *credit.Transaction, correlationID string) (*credit.PostResult, error) {
	res, err := s.postLocked(ctx, tx)
	if err != nil {
		s.metrics.TransactionRejected(rejectionReason(err))
		if errors.Is(err, shared.ErrInsufficientBalance) {
			s.logger.Info("debit rejected",
				"user_id", tx.UserID,
				"type", tx.Type,
				"amount", tx.Amount,
				"source", tx.Source,
			)
		} else {
			s.logger.Warn("ledger post failed",
				"user_id", tx.UserID,
				"type", tx.Type,
				"source", tx.Source,
				"error", err,
			)
		}
		return nil, err
	}

	if res.Replayed {
		s.logger.Debug("idempotent replay",
			"user_id", tx.UserID,
			"idempotency_key", tx.IdempotencyKey,
			"transaction_id", res.Transaction.ID,
		)
		return res, nil
	}

	s.metrics.TransactionPosted(string(tx.Type), string(tx.Source), tx.Amount)

	event := shared.NewCreditsPostedEvent(
		tx.UserID,
		res.Transaction.ID,
		string(tx.Type),
		string(tx.Source),
		tx.Amount,
		res.Balance,
		tx.Type.IsDebit(),
	)
	if correlationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
	}
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Warn("failed to publish ledger event",
			"user_id", tx.UserID,
			"transaction_id", res.Transaction.ID,
			"error", err,
		)
	}

	return res, nil
}

// postLocked holds the user's lock only for the store write.
func (s *LedgerService) postLocked(ctx context.Context, tx *credit.Transaction) (*credit.PostResult, error) {
	unlock, err := s.lock(ctx, tx.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.ledger.Post(ctx, tx)
}

func (s *LedgerService) lock(ctx context.Context, userID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, userID)
	if err != nil {
		return nil, shared.WrapError("credit", "Lock", shared.ErrLockNotAcquired, "user is busy: "+userID, err)
	}
	return unlock, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, shared.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, shared.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return "idempotency_conflict"
	case errors.Is(err, shared.ErrLockNotAcquired):
		return "lock"
	case shared.IsValidation(err):
		return "validation"
	default:
		return "store_error"
	}
}
