// Package badge содержит каталог значков и чистую логику их оценки.
// Оценка - функция (состояние пользователя, каталог) → новые значки,
// без глобального изменяемого состояния.
package badge

import (
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Category - категория значка.
type Category string

const (
	CategorySkill       Category = "skill"
	CategoryCommunity   Category = "community"
	CategoryAchievement Category = "achievement"
	CategorySpecial     Category = "special"
)

// IsValid проверяет категорию.
func (c Category) IsValid() bool {
	switch c {
	case CategorySkill, CategoryCommunity, CategoryAchievement, CategorySpecial:
		return true
	}
	return false
}

// Rarity - редкость значка.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// IsValid проверяет редкость.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// CriteriaType - вид условия получения.
type CriteriaType string

const (
	CriteriaSessions CriteriaType = "sessions"
	CriteriaRating   CriteriaType = "rating"
	CriteriaSkills   CriteriaType = "skills"

	// CriteriaSpecial никогда не выполняется автоматически - только ручная выдача.
	CriteriaSpecial CriteriaType = "special"
)

// IsValid проверяет вид условия.
func (t CriteriaType) IsValid() bool {
	switch t {
	case CriteriaSessions, CriteriaRating, CriteriaSkills, CriteriaSpecial:
		return true
	}
	return false
}

// Criteria - условие получения значка.
type Criteria struct {
	Type      CriteriaType `json:"type" yaml:"type"`
	Threshold float64      `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// SatisfiedBy проверяет условие на текущем состоянии пользователя.
func (c Criteria) SatisfiedBy(u *user.User) bool {
	switch c.Type {
	case CriteriaSessions:
		return float64(u.SessionsCompleted) >= c.Threshold
	case CriteriaRating:
		return u.Reputation >= c.Threshold
	case CriteriaSkills:
		return float64(u.Skills.Count()) >= c.Threshold
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition - запись каталога. Не хранит состояние пользователя.
type Definition struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Icon        string   `json:"icon" yaml:"icon"`
	Category    Category `json:"category" yaml:"category"`
	Rarity      Rarity   `json:"rarity" yaml:"rarity"`
	Points      int      `json:"points" yaml:"points"`
	Criteria    Criteria `json:"criteria" yaml:"criteria"`
}

// IsManual - выдаётся только вручную.
func (d Definition) IsManual() bool {
	return d.Criteria.Type == CriteriaSpecial
}

// ToBadge создаёт значок пользователя.
func (d Definition) ToBadge(earnedAt time.Time) user.Badge {
	return user.Badge{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		Category:    string(d.Category),
		EarnedAt:    earnedAt,
	}
}

// DefaultDefinitions возвращает встроенный каталог.
func DefaultDefinitions() []Definition {
	sessions := func(n float64) Criteria { return Criteria{Type: CriteriaSessions, Threshold: n} }
	rating := func(n float64) Criteria { return Criteria{Type: CriteriaRating, Threshold: n} }
	skills := func(n float64) Criteria { return Criteria{Type: CriteriaSkills, Threshold: n} }
	special := Criteria{Type: CriteriaSpecial}

	return []Definition{
		// Сессии
		{"first_session", "First Steps", "Completed your first skill exchange session", "🎯", CategoryAchievement, RarityCommon, 50, sessions(1)},
		{"sessions_5", "Getting Started", "Completed 5 sessions", "🌱", CategoryAchievement, RarityCommon, 100, sessions(5)},
		{"sessions_10", "Dedicated Learner", "Completed 10 sessions", "📚", CategoryAchievement, RarityUncommon, 200, sessions(10)},
		{"sessions_25", "Knowledge Sharer", "Completed 25 sessions", "🤝", CategoryCommunity, RarityRare, 300, sessions(25)},
		{"sessions_50", "Expert Mentor", "Completed 50 sessions", "🎓", CategoryCommunity, RarityEpic, 500, sessions(50)},
		{"sessions_100", "Legendary Teacher", "Completed 100 sessions", "👑", CategoryCommunity, RarityLegendary, 1000, sessions(100)},

		// Репутация
		{"rating_4", "Well Rated", "Reached a 4.0 reputation", "⭐", CategoryAchievement, RarityUncommon, 150, rating(4.0)},
		{"rating_45", "Highly Rated", "Reached a 4.5 reputation", "🌟", CategoryAchievement, RarityRare, 300, rating(4.5)},
		{"rating_48", "Top Rated", "Reached a 4.8 reputation", "💫", CategoryAchievement, RarityEpic, 500, rating(4.8)},
		{"rating_5", "Flawless", "Holding a perfect 5.0 reputation", "🏆", CategoryAchievement, RarityLegendary, 750, rating(5.0)},

		// Навыки
		{"skills_3", "Curious Mind", "Listed 3 skills", "🧩", CategorySkill, RarityCommon, 50, skills(3)},
		{"skills_5", "Multi-Talented", "Listed 5 skills", "🎨", CategorySkill, RarityUncommon, 100, skills(5)},
		{"skills_10", "Skill Collector", "Listed 10 skills", "🗂️", CategorySkill, RarityRare, 250, skills(10)},
		{"skills_15", "Renaissance Soul", "Listed 15 skills", "🧠", CategorySkill, RarityEpic, 400, skills(15)},

		// Особые
		{"early_adopter", "Early Adopter", "Joined during the launch period", "🚀", CategorySpecial, RarityRare, 250, special},
		{"beta_tester", "Beta Tester", "Helped test new features", "🧪", CategorySpecial, RarityUncommon, 200, special},
		{"verified_expert", "Verified Expert", "Skills verified by the review team", "✅", CategorySpecial, RarityEpic, 500, special},
		{"community_champion", "Community Champion", "Recognized for outstanding community work", "🏅", CategorySpecial, RarityLegendary, 750, special},
		{"founding_member", "Founding Member", "One of the first members of the platform", "💎", CategorySpecial, RarityLegendary, 1000, special},
	}
}
