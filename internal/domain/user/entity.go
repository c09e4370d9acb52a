// Package user содержит доменную модель участника обмена навыками.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package user

import (
	"strings"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// AvailabilityStatus - статус доступности пользователя для сессий.
type AvailabilityStatus string

const (
	StatusAvailable AvailabilityStatus = "available"
	StatusBusy      AvailabilityStatus = "busy"
	StatusOffline   AvailabilityStatus = "offline"
)

// IsValid проверяет корректность статуса.
func (s AvailabilityStatus) IsValid() bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Availability - текущая доступность пользователя.
type Availability struct {
	Status    AvailabilityStatus `json:"status" bson:"status"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updatedAt"`
}

// Skills - навыки, которые пользователь преподаёт и которые хочет изучить.
// Оба списка - множества: сравнение без учёта регистра (shared.SkillKey).
type Skills struct {
	Offered []string `json:"offered" bson:"offered"`
	Wanted  []string `json:"wanted" bson:"wanted"`
}

// Normalize удаляет пустые значения и дубликаты.
func (s Skills) Normalize() Skills {
	return Skills{
		Offered: shared.NormalizeSkillSet(s.Offered),
		Wanted:  shared.NormalizeSkillSet(s.Wanted),
	}
}

// Count возвращает |offered| + |wanted|.
func (s Skills) Count() int {
	return len(s.Offered) + len(s.Wanted)
}

// Offers проверяет, преподаёт ли пользователь навык.
func (s Skills) Offers(skill string) bool {
	return containsSkill(s.Offered, skill)
}

// Wants проверяет, хочет ли пользователь изучить навык.
func (s Skills) Wants(skill string) bool {
	return containsSkill(s.Wanted, skill)
}

func containsSkill(set []string, skill string) bool {
	key := shared.SkillKey(skill)
	if key == "" {
		return false
	}
	for _, s := range set {
		if shared.SkillKey(s) == key {
			return true
		}
	}
	return false
}

// Badge - полученный пользователем значок. Уникален по ID, не удаляется.
type Badge struct {
	ID          string    `json:"id" bson:"id"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	Icon        string    `json:"icon" bson:"icon"`
	Category    string    `json:"category" bson:"category"`
	EarnedAt    time.Time `json:"earned_at" bson:"earnedAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// USER ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// User - участник платформы обмена навыками.
type User struct {
	ID          string
	DisplayName string

	Skills Skills

	// Reputation - средняя оценка сессий (0-5).
	Reputation float64

	// ReviewCount - количество оценок, из которых сложилась репутация.
	ReviewCount int

	Level             int
	SessionsCompleted int
	IsVerified        bool
	Availability      Availability

	// Location - город/регион, может быть пустым.
	Location string

	Badges []Badge

	// CreditBalance - кэшированный баланс. Источник истины - журнал транзакций.
	CreditBalance int

	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUserParams - параметры для создания пользователя.
type NewUserParams struct {
	ID          string
	DisplayName string
	Skills      Skills
	Level       int
	Location    string
	IsVerified  bool
	Status      AvailabilityStatus
}

// NewUser создаёт пользователя с валидацией.
func NewUser(p NewUserParams) (*User, error) {
	id, err := shared.NewUserID(p.ID)
	if err != nil {
		return nil, err
	}
	status := p.Status
	if status == "" {
		status = StatusOffline
	}
	if !status.IsValid() {
		return nil, shared.ErrInvalidStatus
	}
	if p.Level < 0 {
		return nil, shared.NewDomainError("user", "Validate", shared.ErrNegativeValue, "level cannot be negative")
	}

	now := time.Now().UTC()
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = id.String()
	}

	return &User{
		ID:           id.String(),
		DisplayName:  name,
		Skills:       p.Skills.Normalize(),
		Level:        p.Level,
		IsVerified:   p.IsVerified,
		Availability: Availability{Status: status, UpdatedAt: now},
		Location:     strings.TrimSpace(p.Location),
		Badges:       []Badge{},
		LastActiveAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsAvailable проверяет, доступен ли пользователь прямо сейчас.
func (u *User) IsAvailable() bool {
	return u.Availability.Status == StatusAvailable
}

// HasBadge проверяет наличие значка по ID.
// Членство ID в списке значков - единственный признак "уже получен".
func (u *User) HasBadge(id string) bool {
	for _, b := range u.Badges {
		if b.ID == id {
			return true
		}
	}
	return false
}

// BadgeIDs возвращает множество ID полученных значков.
func (u *User) BadgeIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(u.Badges))
	for _, b := range u.Badges {
		ids[b.ID] = struct{}{}
	}
	return ids
}

// SetSkills заменяет навыки. Возвращает true, если набор изменился.
func (u *User) SetSkills(s Skills) bool {
	n := s.Normalize()
	if sameSet(u.Skills.Offered, n.Offered) && sameSet(u.Skills.Wanted, n.Wanted) {
		return false
	}
	u.Skills = n
	u.UpdatedAt = time.Now().UTC()
	return true
}

// SetAvailability меняет статус доступности.
func (u *User) SetAvailability(status AvailabilityStatus) error {
	if !status.IsValid() {
		return shared.ErrInvalidStatus
	}
	now := time.Now().UTC()
	u.Availability = Availability{Status: status, UpdatedAt: now}
	u.UpdatedAt = now
	return nil
}

// Touch отмечает активность пользователя.
func (u *User) Touch(at time.Time) {
	if at.After(u.LastActiveAt) {
		u.LastActiveAt = at
	}
}

// Clone возвращает глубокую копию.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Skills = Skills{
		Offered: append([]string(nil), u.Skills.Offered...),
		Wanted:  append([]string(nil), u.Skills.Wanted...),
	}
	c.Badges = append([]Badge(nil), u.Badges...)
	return &c
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, s := range b {
		if !containsSkill(a, s) {
			return false
		}
	}
	return true
}
