// Package shared содержит общие для всех доменных пакетов ошибки, события и
// интерфейсы. Внешних зависимостей у пакета нет.
package shared

import (
	"errors"
	"fmt"
)

// ═══════════════════════════════════════════════════════════════════════════════
// БАЗОВЫЕ ВИДЫ ОШИБОК
// ═══════════════════════════════════════════════════════════════════════════════

// Виды ошибок. Проверяются через errors.Is, в том числе сквозь DomainError.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")

	// Временные сбои: повтор операции может помочь.
	ErrLockNotAcquired    = errors.New("lock not acquired")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError несёт вид ошибки и место, где она возникла.
//
// Сравнение двух DomainError идёт по (Domain, Op, Message), поэтому
// обёрнутая WrapError копия всё ещё совпадает с исходной переменной.
type DomainError struct {
	Domain  string // "user", "credit", "badge", "rate"...
	Op      string
	Kind    error
	Message string
	Err     error // первопричина, может быть nil
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap отдаёт первопричину, а без неё вид ошибки.
func (e *DomainError) Unwrap() error {
	if e.Err == nil {
		return e.Kind
	}
	return e.Err
}

func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Message == t.Message
	}
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError то же, что NewDomainError, но с первопричиной.
func WrapError(domain, op string, kind error, message string, cause error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: cause}
}

// ═══════════════════════════════════════════════════════════════════════════════
// ОШИБКИ ДОМЕНОВ
// ═══════════════════════════════════════════════════════════════════════════════

// Пользователи
var (
	ErrUserNotFound      = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrUserAlreadyExists = NewDomainError("user", "Create", ErrAlreadyExists, "user already exists")
	ErrInvalidUserID     = NewDomainError("user", "Validate", ErrInvalidInput, "invalid user ID")
	ErrInvalidRating     = NewDomainError("user", "Validate", ErrValueOutOfRange, "rating must be between 0 and 5")
	ErrInvalidStatus     = NewDomainError("user", "Validate", ErrInvalidInput, "invalid availability status")
)

// Кредиты
var (
	ErrInsufficientBalance  = NewDomainError("credit", "Spend", ErrInvalidState, "insufficient balance")
	ErrInvalidAmount        = NewDomainError("credit", "Validate", ErrNegativeValue, "amount must be positive")
	ErrInvalidTxType        = NewDomainError("credit", "Validate", ErrInvalidInput, "invalid transaction type")
	ErrInvalidSource        = NewDomainError("credit", "Validate", ErrInvalidInput, "invalid transaction source")
	ErrIdempotencyConflict  = NewDomainError("credit", "Post", ErrConflict, "idempotency key reused with different parameters")
	ErrInvalidSessionRecord = NewDomainError("credit", "CompleteSession", ErrInvalidInput, "invalid session record")
)

// Бейджи
var (
	ErrBadgeNotFound       = NewDomainError("badge", "Find", ErrNotFound, "badge definition not found")
	ErrBadgeNotManual      = NewDomainError("badge", "AwardSpecial", ErrInvalidInput, "badge is not awarded manually")
	ErrDuplicateBadgeAward = NewDomainError("badge", "Append", ErrAlreadyExists, "badge already awarded")
	ErrInvalidCatalog      = NewDomainError("badge", "Catalog", ErrValidation, "invalid badge catalog")
)

// Ставки
var (
	ErrUnknownSkillRate   = NewDomainError("rate", "Lookup", ErrNotFound, "no earning rate for skill")
	ErrInvalidEarningRate = NewDomainError("rate", "Validate", ErrValidation, "invalid earning rate")
)

// ═══════════════════════════════════════════════════════════════════════════════
// КЛАССИФИКАЦИЯ
// ═══════════════════════════════════════════════════════════════════════════════

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsValidation: вход отвергнут до каких-либо изменений.
func IsValidation(err error) bool {
	for _, kind := range []error{ErrValidation, ErrInvalidInput, ErrEmptyValue, ErrNegativeValue, ErrValueOutOfRange} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsConflict: запрос корректен, но противоречит текущему состоянию.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidState)
}

// IsRetryable: сбой временный, операцию можно повторить как есть.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrLockNotAcquired)
}
