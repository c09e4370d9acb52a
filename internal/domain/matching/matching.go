// Package matching содержит движок подбора партнёров для обмена навыками.
// Оценка кандидата - чистая функция текущего состояния двух пользователей.
package matching

import (
	"sort"
	"strings"

	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCHING FACTORS
//
// Итоговая оценка = обмен навыками + совместимость + локация.
// Каждый фактор добавляет к результату читаемые причины.
// ══════════════════════════════════════════════════════════════════════════════

// Factor - фактор оценки.
type Factor string

const (
	FactorSkillExchange Factor = "skill_exchange"
	FactorCompatibility Factor = "compatibility"
	FactorLocation      Factor = "location"
	FactorExplore       Factor = "explore"
	FactorSOS           Factor = "sos"
)

// ExploreMarker - префикс причин у резервных результатов.
// По нему вызывающая сторона отличает резервный список от настоящих совпадений.
const ExploreMarker = "explore:"

// Reason - вклад одного условия в оценку.
type Reason struct {
	Factor Factor `json:"factor"`
	Points int    `json:"points"`
	Text   string `json:"text"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULT
// ══════════════════════════════════════════════════════════════════════════════

// Result - результат подбора кандидата. Не сохраняется.
type Result struct {
	User    *user.User
	Score   int
	Reasons []string

	// Breakdown - те же причины со структурой (фактор, очки).
	Breakdown []Reason

	// Distance - расстояние в км, движок его не вычисляет.
	Distance *float64

	// Fallback - результат резервного списка, а не настоящего совпадения.
	Fallback bool

	// Rank - позиция после сортировки (с 1).
	Rank int
}

// IsExplore проверяет, что результат помечен как резервный.
func (r Result) IsExplore() bool {
	return r.Fallback && len(r.Reasons) > 0 && strings.HasPrefix(r.Reasons[0], ExploreMarker)
}

// ResultList - список результатов.
type ResultList []Result

// Len возвращает длину списка.
func (m ResultList) Len() int {
	return len(m)
}

// Less: оценка по убыванию, затем ID пользователя по возрастанию.
func (m ResultList) Less(i, j int) bool {
	if m[i].Score != m[j].Score {
		return m[i].Score > m[j].Score
	}
	return m[i].User.ID < m[j].User.ID
}

// Swap меняет элементы местами.
func (m ResultList) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

// Sort сортирует детерминированно и проставляет позиции.
func (m ResultList) Sort() {
	sort.Sort(m)
	for i := range m {
		m[i].Rank = i + 1
	}
}

// TopN возвращает топ N результатов.
func (m ResultList) TopN(n int) ResultList {
	if n < 0 || n >= len(m) {
		return m
	}
	return m[:n]
}

// UserIDs возвращает ID пользователей в порядке списка.
func (m ResultList) UserIDs() []string {
	ids := make([]string, len(m))
	for i, r := range m {
		ids[i] = r.User.ID
	}
	return ids
}

// HasFallback проверяет, является ли список резервным.
func (m ResultList) HasFallback() bool {
	return len(m) > 0 && m[0].Fallback
}

// ══════════════════════════════════════════════════════════════════════════════
// WEIGHT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Weights - веса факторов.
type Weights struct {
	// MutualPerSkill - очки за навык при взаимном обмене.
	MutualPerSkill int

	// OneWayPerSkill - очки за навык при одностороннем совпадении.
	OneWayPerSkill int

	// ReputationClose - бонус, если репутации отличаются не более чем на ReputationWindow.
	ReputationClose  int
	ReputationWindow float64

	// LevelClose - бонус, если уровни отличаются не более чем на LevelWindow.
	LevelClose  int
	LevelWindow int

	// ExperiencedBoth - бонус, если у обоих больше ExperiencedSessions сессий.
	ExperiencedBoth     int
	ExperiencedSessions int

	VerifiedBoth  int
	AvailableBoth int

	LocationExact   int
	LocationPartial int

	// FallbackScore - фиксированная оценка резервных результатов.
	FallbackScore int
}

// DefaultWeights возвращает веса по умолчанию.
func DefaultWeights() Weights {
	return Weights{
		MutualPerSkill:      25,
		OneWayPerSkill:      15,
		ReputationClose:     10,
		ReputationWindow:    1.0,
		LevelClose:          8,
		LevelWindow:         2,
		ExperiencedBoth:     5,
		ExperiencedSessions: 5,
		VerifiedBoth:        5,
		AvailableBoth:       10,
		LocationExact:       15,
		LocationPartial:     8,
		FallbackScore:       10,
	}
}

// SOS parameters.
const (
	// SOSLimit - максимум результатов SOS-подбора.
	SOSLimit = 5

	// SOSVerifiedBonus - бонус верифицированным пользователям.
	SOSVerifiedBonus = 20

	// SOSFallbackMinReputation - порог репутации резервного SOS-списка (строго больше).
	SOSFallbackMinReputation = 4.0
)
