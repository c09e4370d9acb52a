package user

import (
	"context"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт хранилища профилей (UserProfileStore).
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над профилями пользователей.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// CRUD Operations
	// ─────────────────────────────────────────────────────────────────────────

	// Create создаёт нового пользователя.
	// Возвращает ErrUserAlreadyExists, если пользователь уже существует.
	Create(ctx context.Context, u *User) error

	// GetByID возвращает пользователя вместе со значками и кэшированным балансом.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	GetByID(ctx context.Context, id string) (*User, error)

	// Update сохраняет редактируемые поля профиля: имя, навыки, уровень,
	// верификацию, доступность, локацию, последнюю активность.
	// Значки, баланс и счётчики сессий здесь не меняются.
	Update(ctx context.Context, u *User) error

	// ─────────────────────────────────────────────────────────────────────────
	// Queries
	// ─────────────────────────────────────────────────────────────────────────

	// FindBySkill возвращает пользователей, преподающих навык.
	FindBySkill(ctx context.Context, skill string, limit int) ([]*User, error)

	// Search возвращает пользователей по фильтру,
	// отсортированных по последней активности (новые первыми).
	Search(ctx context.Context, filter Filter) ([]*User, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Atomic Mutations
	// ─────────────────────────────────────────────────────────────────────────

	// IncrementSessions атомарно увеличивает sessionsCompleted на 1.
	// Возвращает новое значение.
	IncrementSessions(ctx context.Context, id string) (int, error)

	// ApplyRating атомарно добавляет оценку в среднюю репутацию.
	// Возвращает старую и новую репутацию.
	ApplyRating(ctx context.Context, id string, rating float64) (oldRep, newRep float64, err error)

	// AppendBadge добавляет значок, если его ещё нет ("append if absent").
	// added=false означает, что значок уже был - это не ошибка.
	AppendBadge(ctx context.Context, id string, badge Badge) (added bool, err error)

	// SettleSession одной транзакцией увеличивает счётчики сессий обоих
	// участников и добавляет оценку в репутацию преподавателя.
	// Сессия применяется не более одного раза: повторный вызов с тем же
	// SessionID ничего не меняет и возвращает Applied=false с текущими значениями.
	SettleSession(ctx context.Context, s SessionSettlement) (*SettlementResult, error)
}

// SessionSettlement - итоги завершённой сессии для профилей участников.
type SessionSettlement struct {
	SessionID string
	TeacherID string
	LearnerID string
	Rating    float64
}

// SettlementResult - состояние профилей после SettleSession.
type SettlementResult struct {
	// Applied=false означает, что сессия уже была учтена ранее.
	Applied bool

	TeacherSessions int
	LearnerSessions int

	OldReputation float64
	NewReputation float64
}

// Filter - параметры поиска пользователей.
type Filter struct {
	// Status - фильтр по доступности (пустой = все).
	Status AvailabilityStatus

	// MinReputation - нижняя граница репутации (включительно).
	MinReputation float64

	// OffersSkill / WantsSkill - членство в множествах навыков.
	OffersSkill string
	WantsSkill  string

	// Location - точное совпадение без учёта регистра.
	Location string

	VerifiedOnly bool

	// ExcludeIDs - пользователи, которых нужно исключить.
	ExcludeIDs []string

	// Limit - максимум результатов (по умолчанию 100).
	Limit int
}

// DefaultSearchLimit - лимит поиска по умолчанию.
const DefaultSearchLimit = 100

// EffectiveLimit возвращает лимит с учётом значения по умолчанию.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultSearchLimit
	}
	return f.Limit
}

// Excludes проверяет, исключён ли пользователь фильтром.
func (f Filter) Excludes(id string) bool {
	for _, x := range f.ExcludeIDs {
		if x == id {
			return true
		}
	}
	return false
}

// Matches проверяет пользователя на соответствие фильтру.
// Используется in-memory хранилищем и тестами.
func (f Filter) Matches(u *User) bool {
	if u == nil || f.Excludes(u.ID) {
		return false
	}
	if f.Status != "" && u.Availability.Status != f.Status {
		return false
	}
	if u.Reputation < f.MinReputation {
		return false
	}
	if f.OffersSkill != "" && !u.Skills.Offers(f.OffersSkill) {
		return false
	}
	if f.WantsSkill != "" && !u.Skills.Wants(f.WantsSkill) {
		return false
	}
	if f.Location != "" && !equalFold(u.Location, f.Location) {
		return false
	}
	if f.VerifiedOnly && !u.IsVerified {
		return false
	}
	return true
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
