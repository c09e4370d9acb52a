package matching

import (
	"fmt"
	"math"

	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// SOS MATCHES
// Срочная помощь: доступные прямо сейчас пользователи, умеющие нужный навык.
// ══════════════════════════════════════════════════════════════════════════════

// ComputeSOSMatches возвращает до SOSLimit доступных пользователей, преподающих skill,
// с оценкой round(reputation×10) + 20 за верификацию.
// Если таких нет - любые доступные с репутацией > 4.0, оценка round(reputation×10),
// результаты помечены Fallback.
// requesterID исключается из пула.
func (e *Engine) ComputeSOSMatches(skill string, pool []*user.User, requesterID string) ResultList {
	var requester *user.User
	if requesterID != "" {
		requester = &user.User{ID: requesterID}
	}
	candidates := Dedupe(requester, pool)

	primary := make(ResultList, 0)
	for _, c := range candidates {
		if !c.IsAvailable() || !c.Skills.Offers(skill) {
			continue
		}
		score := reputationPoints(c.Reputation)
		reasons := []Reason{
			{Factor: FactorSOS, Points: score, Text: fmt.Sprintf("Available now, teaches %s (reputation %.1f)", skill, c.Reputation)},
		}
		if c.IsVerified {
			score += SOSVerifiedBonus
			reasons = append(reasons, Reason{Factor: FactorSOS, Points: SOSVerifiedBonus, Text: "Verified member"})
		}
		primary = append(primary, Result{User: c, Score: score, Reasons: texts(reasons), Breakdown: reasons})
	}
	if len(primary) > 0 {
		primary.Sort()
		return primary.TopN(SOSLimit)
	}

	fallback := make(ResultList, 0)
	for _, c := range candidates {
		if !c.IsAvailable() || c.Reputation <= SOSFallbackMinReputation {
			continue
		}
		score := reputationPoints(c.Reputation)
		reasons := []Reason{
			{Factor: FactorSOS, Points: score, Text: fmt.Sprintf("Highly rated member available now (reputation %.1f)", c.Reputation)},
		}
		fallback = append(fallback, Result{User: c, Score: score, Reasons: texts(reasons), Breakdown: reasons, Fallback: true})
	}
	fallback.Sort()
	return fallback.TopN(SOSLimit)
}

func reputationPoints(rep float64) int {
	return int(math.Round(rep * 10))
}
