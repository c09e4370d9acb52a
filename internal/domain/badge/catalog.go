package badge

import (
	"fmt"
	"strings"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// Catalog - неизменяемый каталог значков, загружается один раз при старте.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// NewCatalog проверяет определения и строит каталог.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs: make([]Definition, 0, len(defs)),
		byID: make(map[string]int, len(defs)),
	}
	var problems []string
	for i, d := range defs {
		d.ID = strings.TrimSpace(d.ID)
		switch {
		case d.ID == "":
			problems = append(problems, fmt.Sprintf("#%d: empty id", i))
			continue
		case !d.Category.IsValid():
			problems = append(problems, fmt.Sprintf("%s: invalid category %q", d.ID, d.Category))
		case !d.Rarity.IsValid():
			problems = append(problems, fmt.Sprintf("%s: invalid rarity %q", d.ID, d.Rarity))
		case !d.Criteria.Type.IsValid():
			problems = append(problems, fmt.Sprintf("%s: invalid criteria %q", d.ID, d.Criteria.Type))
		case d.Points < 0:
			problems = append(problems, fmt.Sprintf("%s: negative points", d.ID))
		case !d.IsManual() && d.Criteria.Threshold <= 0:
			problems = append(problems, fmt.Sprintf("%s: threshold must be positive", d.ID))
		}
		if _, dup := c.byID[d.ID]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate id", d.ID))
			continue
		}
		c.byID[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	if len(problems) > 0 {
		return nil, shared.WrapError("badge", "Catalog", shared.ErrValidation,
			strings.Join(problems, "; "), shared.ErrInvalidCatalog)
	}
	return c, nil
}

// MustDefaultCatalog возвращает встроенный каталог.
func MustDefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultDefinitions())
	if err != nil {
		panic(err)
	}
	return c
}

// Get возвращает определение по ID.
func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// All возвращает копию определений в порядке каталога.
func (c *Catalog) All() []Definition {
	return append([]Definition(nil), c.defs...)
}

// Len возвращает размер каталога.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// Evaluate возвращает определения, которых у пользователя ещё нет и условия которых выполнены.
// kinds ограничивает проверку видами условий (инкрементальный режим);
// пустой kinds - полная проверка каталога. Порядок - порядок каталога.
func Evaluate(u *user.User, c *Catalog, kinds ...CriteriaType) []Definition {
	if u == nil || c == nil {
		return nil
	}

	var only map[CriteriaType]struct{}
	if len(kinds) > 0 {
		only = make(map[CriteriaType]struct{}, len(kinds))
		for _, k := range kinds {
			only[k] = struct{}{}
		}
	}

	held := u.BadgeIDs()
	var out []Definition
	for _, d := range c.defs {
		if d.IsManual() {
			continue
		}
		if only != nil {
			if _, ok := only[d.Criteria.Type]; !ok {
				continue
			}
		}
		if _, ok := held[d.ID]; ok {
			continue
		}
		if d.Criteria.SatisfiedBy(u) {
			out = append(out, d)
		}
	}
	return out
}

// Progress - прогресс к значку (для отображения).
type Progress struct {
	Definition Definition `json:"definition"`
	Current    float64    `json:"current"`
	Earned     bool       `json:"earned"`
}

// ProgressFor возвращает прогресс по всем автоматическим значкам.
func ProgressFor(u *user.User, c *Catalog) []Progress {
	held := u.BadgeIDs()
	out := make([]Progress, 0, len(c.defs))
	for _, d := range c.defs {
		_, earned := held[d.ID]
		p := Progress{Definition: d, Earned: earned}
		switch d.Criteria.Type {
		case CriteriaSessions:
			p.Current = float64(u.SessionsCompleted)
		case CriteriaRating:
			p.Current = u.Reputation
		case CriteriaSkills:
			p.Current = float64(u.Skills.Count())
		}
		out = append(out, p)
	}
	return out
}
