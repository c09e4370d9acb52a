package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// VERIFY SKILL COMMAND
// Rewards a user once per offered skill that passed verification.
// ══════════════════════════════════════════════════════════════════════════════

// VerifySkillCommand contains the verified skill.
type VerifySkillCommand struct {
	UserID        string
	Skill         string
	CorrelationID string
}

// Validate validates the command.
func (c VerifySkillCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if shared.SkillKey(c.Skill) == "" {
		return shared.NewDomainError("credit", "VerifySkill", shared.ErrEmptyValue, "skill is required")
	}
	return nil
}

// VerifySkillResult contains the outcome.
type VerifySkillResult struct {
	Skill    string
	Category rate.Category
	Reward   int
	Balance  int
	Replayed bool
}

// VerifySkillHandler handles the VerifySkillCommand.
type VerifySkillHandler struct {
	users  user.Repository
	rates  rate.Source
	ledger *LedgerService
	policy credit.RewardPolicy
	logger *slog.Logger
}

// NewVerifySkillHandler creates a new VerifySkillHandler.
func NewVerifySkillHandler(
	users user.Repository,
	rates rate.Source,
	ledger *LedgerService,
	policy credit.RewardPolicy,
	logger *slog.Logger,
) *VerifySkillHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifySkillHandler{
		users:  users,
		rates:  rates,
		ledger: ledger,
		policy: policy,
		logger: logger.With("handler", "verify_skill"),
	}
}

// Handle executes the command.
func (h *VerifySkillHandler) Handle(ctx context.Context, cmd VerifySkillCommand) (*VerifySkillResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	u, err := h.users.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("verify_skill: %w", err)
	}
	if !u.Skills.Offers(cmd.Skill) {
		return nil, shared.NewDomainError("credit", "VerifySkill", shared.ErrInvalidInput, "user does not offer skill: "+cmd.Skill)
	}

	category := rate.CategoryOther
	if table, err := h.rates.Current(ctx); err == nil {
		if r, ok := table.Lookup(cmd.Skill); ok {
			category = r.Category
		}
	} else {
		h.logger.Warn("rate table unavailable, using default category", "error", err)
	}

	reward := h.policy.SkillVerificationReward(category)
	res, err := h.ledger.AddCredits(ctx, AddCreditsCommand{
		UserID:         cmd.UserID,
		Type:           credit.TypeBonus,
		Amount:         reward,
		Source:         credit.SourceSkillVerification,
		Description:    "Verified " + cmd.Skill,
		Metadata:       map[string]any{"skill": cmd.Skill, "category": string(category)},
		IdempotencyKey: "verify:" + cmd.UserID + ":" + shared.SkillKey(cmd.Skill),
		CorrelationID:  cmd.CorrelationID,
	})
	if err != nil {
		return nil, fmt.Errorf("verify_skill: %w", err)
	}

	return &VerifySkillResult{
		Skill:    cmd.Skill,
		Category: category,
		Reward:   res.Transaction.Amount,
		Balance:  res.Balance,
		Replayed: res.Replayed,
	}, nil
}
