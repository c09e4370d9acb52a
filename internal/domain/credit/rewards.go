package credit

import (
	"math"

	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD RULES
// Чистые функции расчёта наград. Публикацию в журнал делают команды приложения.
// ══════════════════════════════════════════════════════════════════════════════

// StreakTier - ступень награды за серию дней.
type StreakTier struct {
	MinDays int
	Reward  int
}

// RewardPolicy - параметры правил начисления.
type RewardPolicy struct {
	// Сессия
	DefaultBaseRate      int
	HighRatingThreshold  float64
	HighRatingMultiplier float64
	GoodRatingThreshold  float64
	GoodRatingMultiplier float64
	DurationUnitMinutes  float64
	LearnerBonus         int

	// Значки: points / BadgeDivisor, округление вниз.
	BadgeDivisor int

	// Серия дней, ступени по убыванию MinDays.
	StreakTiers []StreakTier

	// Верификация навыка: round(SkillVerificationBase × множитель категории).
	SkillVerificationBase int
	CategoryMultipliers   map[rate.Category]float64

	// Вклад в сообщество.
	VideoUploadReward    int
	HelpfulCommentReward int
}

// DefaultRewardPolicy возвращает правила по умолчанию.
func DefaultRewardPolicy() RewardPolicy {
	return RewardPolicy{
		DefaultBaseRate:      rate.DefaultBaseRate,
		HighRatingThreshold:  4.5,
		HighRatingMultiplier: 1.5,
		GoodRatingThreshold:  4.0,
		GoodRatingMultiplier: 1.2,
		DurationUnitMinutes:  30,
		LearnerBonus:         5,
		BadgeDivisor:         10,
		StreakTiers: []StreakTier{
			{MinDays: 30, Reward: 50},
			{MinDays: 14, Reward: 25},
			{MinDays: 7, Reward: 15},
			{MinDays: 3, Reward: 10},
			{MinDays: 1, Reward: 5},
		},
		SkillVerificationBase: 30,
		CategoryMultipliers: map[rate.Category]float64{
			rate.CategoryProgramming: 1.5,
			rate.CategoryDesign:      1.3,
			rate.CategoryLanguages:   1.2,
			rate.CategoryMusic:       1.1,
		},
		VideoUploadReward:    15,
		HelpfulCommentReward: 3,
	}
}

// QualityMultiplier возвращает множитель качества по оценке сессии.
func (p RewardPolicy) QualityMultiplier(rating float64) float64 {
	switch {
	case rating >= p.HighRatingThreshold:
		return p.HighRatingMultiplier
	case rating >= p.GoodRatingThreshold:
		return p.GoodRatingMultiplier
	default:
		return 1.0
	}
}

// DurationMultiplier возвращает max(1, minutes/30).
func (p RewardPolicy) DurationMultiplier(minutes int) float64 {
	return math.Max(1, float64(minutes)/p.DurationUnitMinutes)
}

// SessionReward - награда преподавателю: round(baseRate × quality × duration).
// baseRate <= 0 заменяется ставкой по умолчанию.
func (p RewardPolicy) SessionReward(baseRate int, rating float64, minutes int) int {
	if baseRate <= 0 {
		baseRate = p.DefaultBaseRate
	}
	return int(math.Round(float64(baseRate) * p.QualityMultiplier(rating) * p.DurationMultiplier(minutes)))
}

// SessionRewardFor берёт ставку из таблицы. Неизвестный навык - ставка по умолчанию.
func (p RewardPolicy) SessionRewardFor(table *rate.Table, skill string, rating float64, minutes int) (reward, baseRate int) {
	baseRate, err := table.BaseRateFor(skill)
	if err != nil {
		baseRate = p.DefaultBaseRate
	}
	return p.SessionReward(baseRate, rating, minutes), baseRate
}

// BadgeReward - round_down(points / 10).
func (p RewardPolicy) BadgeReward(points int) int {
	if points <= 0 || p.BadgeDivisor <= 0 {
		return 0
	}
	return points / p.BadgeDivisor
}

// StreakReward - ступенчатая награда за серию дней. 0 - транзакция не создаётся.
func (p RewardPolicy) StreakReward(days int) int {
	for _, tier := range p.StreakTiers {
		if days >= tier.MinDays {
			return tier.Reward
		}
	}
	return 0
}

// CategoryMultiplier возвращает множитель категории (1.0 по умолчанию).
func (p RewardPolicy) CategoryMultiplier(c rate.Category) float64 {
	if m, ok := p.CategoryMultipliers[c]; ok {
		return m
	}
	return 1.0
}

// SkillVerificationReward - round(30 × множитель категории).
func (p RewardPolicy) SkillVerificationReward(c rate.Category) int {
	return int(math.Round(float64(p.SkillVerificationBase) * p.CategoryMultiplier(c)))
}

// ContributionKind - вид вклада в сообщество.
type ContributionKind string

const (
	ContributionVideoUpload    ContributionKind = "video_upload"
	ContributionHelpfulComment ContributionKind = "helpful_comment"
)

// ContributionReward возвращает фиксированную награду и источник транзакции.
func (p RewardPolicy) ContributionReward(kind ContributionKind) (int, Source, error) {
	switch kind {
	case ContributionVideoUpload:
		return p.VideoUploadReward, SourceVideoUpload, nil
	case ContributionHelpfulComment:
		return p.HelpfulCommentReward, SourceHelpfulComment, nil
	}
	return 0, "", shared.NewDomainError("credit", "ContributionReward", shared.ErrInvalidInput, "unknown contribution kind: "+string(kind))
}
