package matching

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// DefaultLimit - лимит результатов по умолчанию.
const DefaultLimit = 10

// Engine - движок подбора. Не хранит изменяемого состояния и безопасен
// для конкурентного использования.
type Engine struct {
	weights Weights

	// parallelThreshold - с какого размера пула оценка идёт параллельно.
	parallelThreshold int
	workers           int
}

// Option настраивает Engine.
type Option func(*Engine)

// WithWeights задаёт веса факторов.
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithParallelism задаёт порог параллельной оценки и число воркеров.
// threshold <= 0 отключает параллельную оценку.
func WithParallelism(threshold, workers int) Option {
	return func(e *Engine) {
		e.parallelThreshold = threshold
		if workers > 0 {
			e.workers = workers
		}
	}
}

// NewEngine создаёт движок.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights:           DefaultWeights(),
		parallelThreshold: 256,
		workers:           runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weights возвращает веса движка.
func (e *Engine) Weights() Weights {
	return e.weights
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPUTE MATCHES
// ══════════════════════════════════════════════════════════════════════════════

// ComputeMatches ранжирует кандидатов для subject.
//
// Кандидаты с оценкой 0 исключаются. Если не осталось ни одного, возвращается
// резервный список: до limit недавно активных пользователей пула с оценкой
// FallbackScore и причинами с префиксом ExploreMarker.
// Пустой пул - не ошибка.
func (e *Engine) ComputeMatches(subject *user.User, pool []*user.User, limit int) ResultList {
	if limit <= 0 {
		limit = DefaultLimit
	}
	candidates := Dedupe(subject, pool)

	scored := e.scoreAll(subject, candidates)
	results := make(ResultList, 0, len(scored))
	for _, r := range scored {
		if r.Score > 0 {
			results = append(results, r)
		}
	}

	if len(results) == 0 {
		return e.fallback(candidates, limit)
	}

	results.Sort()
	return results.TopN(limit)
}

// Dedupe убирает nil, дубликаты по ID и самого subject. Порядок сохраняется.
func Dedupe(subject *user.User, pool []*user.User) []*user.User {
	seen := make(map[string]struct{}, len(pool))
	out := make([]*user.User, 0, len(pool))
	for _, c := range pool {
		if c == nil || c.ID == "" {
			continue
		}
		if subject != nil && c.ID == subject.ID {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// scoreAll оценивает кандидатов. Оценки независимы, поэтому большие пулы
// обрабатываются параллельно; каждая горутина пишет только в свою ячейку.
func (e *Engine) scoreAll(subject *user.User, candidates []*user.User) []Result {
	out := make([]Result, len(candidates))

	if e.parallelThreshold <= 0 || len(candidates) < e.parallelThreshold {
		for i, c := range candidates {
			out[i] = e.Score(subject, c)
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, c := range candidates {
		g.Go(func() error {
			out[i] = e.Score(subject, c)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// fallback строит резервный список по последней активности.
func (e *Engine) fallback(candidates []*user.User, limit int) ResultList {
	recent := append([]*user.User(nil), candidates...)
	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].LastActiveAt.Equal(recent[j].LastActiveAt) {
			return recent[i].LastActiveAt.After(recent[j].LastActiveAt)
		}
		return recent[i].ID < recent[j].ID
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}

	out := make(ResultList, 0, len(recent))
	for i, c := range recent {
		reasons := []Reason{
			{Factor: FactorExplore, Points: e.weights.FallbackScore, Text: ExploreMarker + " recently active member"},
			{Factor: FactorExplore, Points: 0, Text: ExploreMarker + " say hello and discover what you can swap"},
		}
		out = append(out, Result{
			User:      c,
			Score:     e.weights.FallbackScore,
			Reasons:   texts(reasons),
			Breakdown: reasons,
			Fallback:  true,
			Rank:      i + 1,
		})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORING
// ══════════════════════════════════════════════════════════════════════════════

// Score оценивает одного кандидата: сумма трёх независимых подоценок.
func (e *Engine) Score(subject, candidate *user.User) Result {
	var reasons []Reason
	score := 0

	for _, part := range [][]Reason{
		e.skillExchange(subject, candidate),
		e.compatibility(subject, candidate),
		e.location(subject, candidate),
	} {
		for _, r := range part {
			score += r.Points
		}
		reasons = append(reasons, part...)
	}

	return Result{
		User:      candidate,
		Score:     score,
		Reasons:   texts(reasons),
		Breakdown: reasons,
	}
}

// skillExchange: A = subject.wanted ∩ candidate.offered, B = candidate.wanted ∩ subject.offered.
// Оба непустые - взаимный обмен, 25 × (|A|+|B|); иначе 15 за каждый навык.
// Направления перечисляются в причинах в обоих случаях.
func (e *Engine) skillExchange(subject, candidate *user.User) []Reason {
	a := Intersect(subject.Skills.Wanted, candidate.Skills.Offered)
	b := Intersect(candidate.Skills.Wanted, subject.Skills.Offered)

	var out []Reason
	if len(a) > 0 && len(b) > 0 {
		out = append(out, Reason{
			Factor: FactorSkillExchange,
			Points: e.weights.MutualPerSkill * (len(a) + len(b)),
			Text:   fmt.Sprintf("Mutual skill exchange (%d skills)", len(a)+len(b)),
		})
		out = append(out,
			Reason{Factor: FactorSkillExchange, Text: "Can teach you: " + strings.Join(a, ", ")},
			Reason{Factor: FactorSkillExchange, Text: "Wants to learn from you: " + strings.Join(b, ", ")},
		)
		return out
	}

	if len(a) > 0 {
		out = append(out, Reason{
			Factor: FactorSkillExchange,
			Points: e.weights.OneWayPerSkill * len(a),
			Text:   "Can teach you: " + strings.Join(a, ", "),
		})
	}
	if len(b) > 0 {
		out = append(out, Reason{
			Factor: FactorSkillExchange,
			Points: e.weights.OneWayPerSkill * len(b),
			Text:   "Wants to learn from you: " + strings.Join(b, ", "),
		})
	}
	return out
}

func (e *Engine) compatibility(subject, candidate *user.User) []Reason {
	w := e.weights
	var out []Reason

	if math.Abs(subject.Reputation-candidate.Reputation) <= w.ReputationWindow {
		out = append(out, Reason{Factor: FactorCompatibility, Points: w.ReputationClose, Text: "Similar reputation"})
	}
	if abs(subject.Level-candidate.Level) <= w.LevelWindow {
		out = append(out, Reason{Factor: FactorCompatibility, Points: w.LevelClose, Text: "Similar experience level"})
	}
	if subject.SessionsCompleted > w.ExperiencedSessions && candidate.SessionsCompleted > w.ExperiencedSessions {
		out = append(out, Reason{Factor: FactorCompatibility, Points: w.ExperiencedBoth, Text: "Both experienced with sessions"})
	}
	if subject.IsVerified && candidate.IsVerified {
		out = append(out, Reason{Factor: FactorCompatibility, Points: w.VerifiedBoth, Text: "Both verified"})
	}
	if subject.IsAvailable() && candidate.IsAvailable() {
		out = append(out, Reason{Factor: FactorCompatibility, Points: w.AvailableBoth, Text: "Both available now"})
	}
	return out
}

func (e *Engine) location(subject, candidate *user.User) []Reason {
	a := strings.ToLower(strings.TrimSpace(subject.Location))
	b := strings.ToLower(strings.TrimSpace(candidate.Location))
	if a == "" || b == "" {
		return nil
	}
	if a == b {
		return []Reason{{Factor: FactorLocation, Points: e.weights.LocationExact, Text: "Same location: " + candidate.Location}}
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return []Reason{{Factor: FactorLocation, Points: e.weights.LocationPartial, Text: "Nearby: " + candidate.Location}}
	}
	return nil
}

// Intersect возвращает элементы want, присутствующие в have, в порядке want.
// Сравнение - по shared.SkillKey.
func Intersect(want, have []string) []string {
	if len(want) == 0 || len(have) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[shared.SkillKey(h)] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{}, len(want))
	for _, w := range want {
		k := shared.SkillKey(w)
		if _, ok := set[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, w)
	}
	return out
}

func texts(reasons []Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = r.Text
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
