// Package rate содержит таблицу ставок начисления кредитов по навыкам.
package rate

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// DefaultBaseRate - базовая ставка для навыков без записи в таблице.
const DefaultBaseRate = 20

// Category - категория навыка.
type Category string

const (
	CategoryProgramming Category = "Programming"
	CategoryDesign      Category = "Design"
	CategoryLanguages   Category = "Languages"
	CategoryMusic       Category = "Music"
	CategoryBusiness    Category = "Business"
	CategoryOther       Category = "Other"
)

// ParseCategory приводит строку к категории без учёта регистра.
// Неизвестные значения становятся CategoryOther.
func ParseCategory(s string) Category {
	for _, c := range []Category{CategoryProgramming, CategoryDesign, CategoryLanguages, CategoryMusic, CategoryBusiness} {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c
		}
	}
	return CategoryOther
}

// SkillEarningRate - конфигурация начисления за преподавание навыка.
type SkillEarningRate struct {
	SkillName            string    `json:"skill_name" yaml:"skill"`
	Category             Category  `json:"category" yaml:"category"`
	BaseRate             int       `json:"base_rate" yaml:"base_rate"`
	DemandMultiplier     float64   `json:"demand_multiplier" yaml:"demand_multiplier"`
	DifficultyMultiplier float64   `json:"difficulty_multiplier" yaml:"difficulty_multiplier"`
	LastUpdated          time.Time `json:"last_updated" yaml:"-"`
}

// Key возвращает ключ записи (имя навыка без учёта регистра).
func (r SkillEarningRate) Key() string {
	return shared.SkillKey(r.SkillName)
}

// Normalize заполняет значения по умолчанию для множителей и категории.
func (r SkillEarningRate) Normalize() SkillEarningRate {
	r.SkillName = strings.Join(strings.Fields(r.SkillName), " ")
	r.Category = ParseCategory(string(r.Category))
	if r.DemandMultiplier == 0 {
		r.DemandMultiplier = 1
	}
	if r.DifficultyMultiplier == 0 {
		r.DifficultyMultiplier = 1
	}
	return r
}

// Validate проверяет запись.
func (r SkillEarningRate) Validate() error {
	switch {
	case r.Key() == "":
		return shared.WrapError("rate", "Validate", shared.ErrEmptyValue, "skill name is required", shared.ErrInvalidEarningRate)
	case r.BaseRate <= 0:
		return shared.WrapError("rate", "Validate", shared.ErrValueOutOfRange, "base rate must be positive: "+r.SkillName, shared.ErrInvalidEarningRate)
	case r.DemandMultiplier <= 0 || r.DifficultyMultiplier <= 0 ||
		math.IsNaN(r.DemandMultiplier) || math.IsNaN(r.DifficultyMultiplier):
		return shared.WrapError("rate", "Validate", shared.ErrValueOutOfRange, "multipliers must be positive: "+r.SkillName, shared.ErrInvalidEarningRate)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TABLE
// ══════════════════════════════════════════════════════════════════════════════

// Table - неизменяемый снимок ставок. Безопасен для конкурентного чтения.
type Table struct {
	rates map[string]SkillEarningRate
}

// NewTable строит снимок. При повторе имени побеждает последняя запись.
func NewTable(rates []SkillEarningRate) *Table {
	t := &Table{rates: make(map[string]SkillEarningRate, len(rates))}
	for _, r := range rates {
		r = r.Normalize()
		if r.Key() == "" {
			continue
		}
		t.rates[r.Key()] = r
	}
	return t
}

// Lookup ищет ставку по имени навыка.
func (t *Table) Lookup(skill string) (SkillEarningRate, bool) {
	if t == nil {
		return SkillEarningRate{}, false
	}
	r, ok := t.rates[shared.SkillKey(skill)]
	return r, ok
}

// BaseRateFor возвращает базовую ставку навыка.
// Для неизвестного навыка - DefaultBaseRate и ErrUnknownSkillRate (не фатально).
func (t *Table) BaseRateFor(skill string) (int, error) {
	if r, ok := t.Lookup(skill); ok {
		return r.BaseRate, nil
	}
	return DefaultBaseRate, shared.ErrUnknownSkillRate
}

// Len возвращает количество записей.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rates)
}

// All возвращает записи, отсортированные по имени навыка.
func (t *Table) All() []SkillEarningRate {
	if t == nil {
		return nil
	}
	out := make([]SkillEarningRate, 0, len(t.rates))
	for _, r := range t.rates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище ставок.
type Repository interface {
	// UpsertBatch вставляет или обновляет записи по имени навыка одной атомарной операцией.
	// Возвращает количество записей.
	UpsertBatch(ctx context.Context, rates []SkillEarningRate) (int, error)

	// List возвращает все записи.
	List(ctx context.Context) ([]SkillEarningRate, error)
}

// Source отдаёт актуальный снимок таблицы.
type Source interface {
	Current(ctx context.Context) (*Table, error)
}
