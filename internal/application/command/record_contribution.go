package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD CONTRIBUTION COMMAND
// Flat community rewards: video uploads and helpful comments.
// ══════════════════════════════════════════════════════════════════════════════

// RecordContributionCommand contains the contribution.
type RecordContributionCommand struct {
	UserID string
	Kind   credit.ContributionKind

	// ContributionID is the video or comment ID. One reward per contribution.
	ContributionID string

	CorrelationID string
}

// Validate validates the command.
func (c RecordContributionCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if strings.TrimSpace(c.ContributionID) == "" {
		return shared.NewDomainError("credit", "RecordContribution", shared.ErrEmptyValue, "contribution_id is required")
	}
	return nil
}

// RecordContributionResult contains the outcome.
type RecordContributionResult struct {
	Reward   int
	Balance  int
	Replayed bool
}

// RecordContributionHandler handles the RecordContributionCommand.
type RecordContributionHandler struct {
	ledger *LedgerService
	policy credit.RewardPolicy
}

// NewRecordContributionHandler creates a new RecordContributionHandler.
func NewRecordContributionHandler(ledger *LedgerService, policy credit.RewardPolicy) *RecordContributionHandler {
	return &RecordContributionHandler{ledger: ledger, policy: policy}
}

// Handle executes the command.
func (h *RecordContributionHandler) Handle(ctx context.Context, cmd RecordContributionCommand) (*RecordContributionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	amount, source, err := h.policy.ContributionReward(cmd.Kind)
	if err != nil {
		return nil, err
	}

	res, err := h.ledger.AddCredits(ctx, AddCreditsCommand{
		UserID:         cmd.UserID,
		Type:           credit.TypeEarned,
		Amount:         amount,
		Source:         source,
		Description:    strings.ReplaceAll(string(cmd.Kind), "_", " "),
		Metadata:       map[string]any{"contribution_id": cmd.ContributionID},
		IdempotencyKey: "contribution:" + string(cmd.Kind) + ":" + cmd.ContributionID,
		CorrelationID:  cmd.CorrelationID,
	})
	if err != nil {
		return nil, fmt.Errorf("record_contribution: %w", err)
	}

	return &RecordContributionResult{
		Reward:   res.Transaction.Amount,
		Balance:  res.Balance,
		Replayed: res.Replayed,
	}, nil
}
