// Package credit содержит модель внутренней экономики кредитов:
// транзакции журнала, правила начисления и статистику заработка.
package credit

import (
	"context"
	"strings"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// TransactionType - тип транзакции.
type TransactionType string

const (
	TypeEarned TransactionType = "earned"
	TypeSpent  TransactionType = "spent"
	TypeBonus  TransactionType = "bonus"

	// TypePenalty зарезервирован: создаётся только административной командой Penalize.
	TypePenalty TransactionType = "penalty"
)

// IsValid проверяет тип.
func (t TransactionType) IsValid() bool {
	switch t {
	case TypeEarned, TypeSpent, TypeBonus, TypePenalty:
		return true
	}
	return false
}

// IsCredit - увеличивает ли тип баланс.
func (t TransactionType) IsCredit() bool {
	return t == TypeEarned || t == TypeBonus
}

// IsDebit - уменьшает ли тип баланс.
func (t TransactionType) IsDebit() bool {
	return t == TypeSpent || t == TypePenalty
}

// Source - источник транзакции.
type Source string

const (
	// Начисления
	SourceSessionTeaching   Source = "session_teaching"
	SourceSessionLearning   Source = "session_learning"
	SourceBadgeEarned       Source = "badge_earned"
	SourceDailyStreak       Source = "daily_streak"
	SourceSkillVerification Source = "skill_verification"
	SourceVideoUpload       Source = "video_upload"
	SourceHelpfulComment    Source = "helpful_comment"
	SourceReferral          Source = "referral"
	SourcePurchase          Source = "purchase"

	// Списания
	SourceSessionBooking Source = "session_booking"
	SourcePremiumFeature Source = "premium_feature"
	SourceMarketplace    Source = "marketplace"

	// Администрирование
	SourceAdminAdjustment Source = "admin_adjustment"
)

var knownSources = map[Source]struct{}{
	SourceSessionTeaching: {}, SourceSessionLearning: {}, SourceBadgeEarned: {},
	SourceDailyStreak: {}, SourceSkillVerification: {}, SourceVideoUpload: {},
	SourceHelpfulComment: {}, SourceReferral: {}, SourcePurchase: {},
	SourceSessionBooking: {}, SourcePremiumFeature: {}, SourceMarketplace: {},
	SourceAdminAdjustment: {},
}

// IsValid проверяет, что источник известен.
func (s Source) IsValid() bool {
	_, ok := knownSources[s]
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

// Transaction - неизменяемая запись журнала.
// Журнал - система учёта баланса: кэшированный баланс лишь проекция.
type Transaction struct {
	ID          string
	UserID      string
	Type        TransactionType
	Amount      int
	Source      Source
	Description string
	Metadata    map[string]any

	// IdempotencyKey - ключ повтора (пустой = без идемпотентности).
	// Уникален в пределах пользователя.
	IdempotencyKey string

	// BalanceAfter - баланс сразу после применения транзакции.
	BalanceAfter int

	CreatedAt time.Time
}

// Validate проверяет запись перед публикацией в журнал.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if !t.Type.IsValid() {
		return shared.ErrInvalidTxType
	}
	if t.Amount <= 0 {
		return shared.ErrInvalidAmount
	}
	if !t.Source.IsValid() {
		return shared.ErrInvalidSource
	}
	return nil
}

// Signed возвращает вклад транзакции в баланс.
func (t *Transaction) Signed() int {
	if t.Type.IsDebit() {
		return -t.Amount
	}
	return t.Amount
}

// SameRequest сравнивает параметры запроса двух транзакций с одним ключом идемпотентности.
func (t *Transaction) SameRequest(other *Transaction) bool {
	return t.UserID == other.UserID &&
		t.Type == other.Type &&
		t.Amount == other.Amount &&
		t.Source == other.Source
}

// Apply применяет транзакцию к балансу.
// Возвращает ErrInsufficientBalance, если баланс стал бы отрицательным.
func Apply(balance int, t *Transaction) (int, error) {
	next := balance + t.Signed()
	if next < 0 {
		return balance, shared.ErrInsufficientBalance
	}
	return next, nil
}

// Replay вычисляет баланс по истории транзакций.
func Replay(txs []*Transaction) int {
	balance := 0
	for _, t := range txs {
		balance += t.Signed()
	}
	return balance
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER PORT
// ══════════════════════════════════════════════════════════════════════════════

// PostResult - итог публикации транзакции.
type PostResult struct {
	Transaction *Transaction
	Balance     int

	// Replayed - транзакция с этим ключом уже была, возвращён исходный результат.
	Replayed bool
}

// Ledger - журнал транзакций с кэшированным балансом.
type Ledger interface {
	// Post атомарно: проверяет существование пользователя, обрабатывает повтор
	// по ключу идемпотентности, проверяет баланс для списаний, добавляет запись
	// и обновляет кэшированный баланс. Промежуточное состояние не наблюдаемо.
	//
	// Ошибки: ErrUserNotFound, ErrInsufficientBalance (баланс не меняется),
	// ErrIdempotencyConflict.
	Post(ctx context.Context, tx *Transaction) (*PostResult, error)

	// Balance возвращает кэшированный баланс.
	Balance(ctx context.Context, userID string) (int, error)

	// ListByUser возвращает историю пользователя в порядке создания.
	ListByUser(ctx context.Context, userID string) ([]*Transaction, error)
}
