package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY DAILY STREAK COMMAND
// Invoked externally once per user per day (HTTP or skillctl); the core
// schedules nothing itself.
// ══════════════════════════════════════════════════════════════════════════════

// ApplyDailyStreakCommand contains the streak to reward.
type ApplyDailyStreakCommand struct {
	UserID     string
	StreakDays int

	// Day is the moment being rewarded; its calendar day in the handler's
	// location keys the reward. Defaults to now.
	Day time.Time

	CorrelationID string
}

// Validate validates the command.
func (c ApplyDailyStreakCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if c.StreakDays < 0 {
		return shared.NewDomainError("credit", "ApplyDailyStreak", shared.ErrNegativeValue, "streak days cannot be negative")
	}
	return nil
}

// ApplyDailyStreakResult contains the outcome.
type ApplyDailyStreakResult struct {
	Reward  int
	Balance int

	// Skipped is true when the streak earns nothing; no transaction is written.
	Skipped  bool
	Replayed bool
}

// ApplyDailyStreakHandler handles the ApplyDailyStreakCommand.
type ApplyDailyStreakHandler struct {
	ledger *LedgerService
	policy credit.RewardPolicy
	logger *slog.Logger

	// eligible gates partial rollouts per user. nil admits everyone.
	eligible func(userID string) bool

	// loc decides where a day starts. nil means UTC.
	loc *time.Location
}

// NewApplyDailyStreakHandler creates a new ApplyDailyStreakHandler.
func NewApplyDailyStreakHandler(ledger *LedgerService, policy credit.RewardPolicy, logger *slog.Logger) *ApplyDailyStreakHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApplyDailyStreakHandler{
		ledger: ledger,
		policy: policy,
		logger: logger.With("handler", "apply_daily_streak"),
	}
}

// WithEligibility limits streak rewards to users the predicate accepts.
// Everyone else gets a Skipped result.
func (h *ApplyDailyStreakHandler) WithEligibility(fn func(userID string) bool) *ApplyDailyStreakHandler {
	h.eligible = fn
	return h
}

// WithLocation sets the time zone whose calendar days bound one streak reward.
func (h *ApplyDailyStreakHandler) WithLocation(loc *time.Location) *ApplyDailyStreakHandler {
	h.loc = loc
	return h
}

// Handle executes the command.
func (h *ApplyDailyStreakHandler) Handle(ctx context.Context, cmd ApplyDailyStreakCommand) (*ApplyDailyStreakResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	reward := h.policy.StreakReward(cmd.StreakDays)
	if h.eligible != nil && !h.eligible(cmd.UserID) {
		reward = 0
	}
	if reward == 0 {
		balance, err := h.ledger.Balance(ctx, cmd.UserID)
		if err != nil {
			return nil, fmt.Errorf("apply_daily_streak: %w", err)
		}
		return &ApplyDailyStreakResult{Balance: balance, Skipped: true}, nil
	}

	day := cmd.Day
	if day.IsZero() {
		day = time.Now()
	}

	res, err := h.ledger.AddCredits(ctx, AddCreditsCommand{
		UserID:         cmd.UserID,
		Type:           credit.TypeBonus,
		Amount:         reward,
		Source:         credit.SourceDailyStreak,
		Description:    fmt.Sprintf("%d-day streak", cmd.StreakDays),
		Metadata:       map[string]any{"streak_days": cmd.StreakDays},
		IdempotencyKey: "streak:" + cmd.UserID + ":" + timeutil.DayKey(day, h.loc),
		CorrelationID:  cmd.CorrelationID,
	})
	if err != nil {
		return nil, fmt.Errorf("apply_daily_streak: %w", err)
	}

	return &ApplyDailyStreakResult{
		Reward:   res.Transaction.Amount,
		Balance:  res.Balance,
		Replayed: res.Replayed,
	}, nil
}
