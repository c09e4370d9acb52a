package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE SESSION COMMAND
// Settles a finished teaching session: the teacher earns the rate-based
// reward, the learner gets the flat completion bonus, both session counters
// move and the teacher's reputation absorbs the rating.
// Badge re-evaluation is driven by the session.completed event.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteSessionCommand contains a finished session record.
type CompleteSessionCommand struct {
	// SessionID identifies the session and keys both ledger postings.
	SessionID string

	TeacherID string
	LearnerID string
	Skill     string

	// Rating is the learner's rating of the session, 0-5.
	Rating float64

	DurationMinutes int

	CorrelationID string
}

// Validate validates the command.
func (c CompleteSessionCommand) Validate() error {
	invalid := func(msg string) error {
		return shared.WrapError("credit", "CompleteSession", shared.ErrInvalidInput, msg, shared.ErrInvalidSessionRecord)
	}
	switch {
	case strings.TrimSpace(c.SessionID) == "":
		return invalid("session_id is required")
	case strings.TrimSpace(c.TeacherID) == "" || strings.TrimSpace(c.LearnerID) == "":
		return invalid("teacher_id and learner_id are required")
	case c.TeacherID == c.LearnerID:
		return invalid("teacher and learner must differ")
	case shared.SkillKey(c.Skill) == "":
		return invalid("skill is required")
	case !shared.Rating(c.Rating).IsValid():
		return invalid("rating must be between 0 and 5")
	case c.DurationMinutes < 0:
		return invalid("duration cannot be negative")
	}
	return nil
}

// CompleteSessionResult contains the settlement outcome.
type CompleteSessionResult struct {
	SessionID string

	TeacherReward  int
	BaseRate       int
	UnknownSkill   bool
	LearnerBonus   int
	TeacherBalance int
	LearnerBalance int

	TeacherSessions   int
	LearnerSessions   int
	TeacherReputation float64

	// Replayed is true when the session had already been settled.
	// Balances and counters then report the current state.
	Replayed bool

	CompletedAt time.Time
}

// CompleteSessionHandler handles the CompleteSessionCommand.
type CompleteSessionHandler struct {
	users     user.Repository
	rates     rate.Source
	ledger    *LedgerService
	policy    credit.RewardPolicy
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewCompleteSessionHandler creates a new CompleteSessionHandler.
func NewCompleteSessionHandler(
	users user.Repository,
	rates rate.Source,
	ledger *LedgerService,
	policy credit.RewardPolicy,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *CompleteSessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &CompleteSessionHandler{
		users:     users,
		rates:     rates,
		ledger:    ledger,
		policy:    policy,
		publisher: publisher,
		logger:    logger.With("handler", "complete_session"),
	}
}

// Handle executes the complete session command.
func (h *CompleteSessionHandler) Handle(ctx context.Context, cmd CompleteSessionCommand) (*CompleteSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	for _, id := range []string{cmd.TeacherID, cmd.LearnerID} {
		if _, err := h.users.GetByID(ctx, id); err != nil {
			return nil, fmt.Errorf("complete_session: %w", err)
		}
	}

	table, err := h.rates.Current(ctx)
	if err != nil {
		h.logger.Warn("rate table unavailable, using default base rate",
			"session_id", cmd.SessionID,
			"error", err,
		)
		table = nil
	}
	reward, baseRate := h.policy.SessionRewardFor(table, cmd.Skill, cmd.Rating, cmd.DurationMinutes)
	_, known := table.Lookup(cmd.Skill)

	result := &CompleteSessionResult{
		SessionID:     cmd.SessionID,
		TeacherReward: reward,
		BaseRate:      baseRate,
		UnknownSkill:  !known,
		LearnerBonus:  h.policy.LearnerBonus,
		CompletedAt:   time.Now().UTC(),
	}

	// Every step is keyed by the session, so a retry after a partial failure
	// finishes the remaining work and a retry after success changes nothing.
	teacherRes, err := h.ledger.AddCredits(ctx, AddCreditsCommand{
		UserID:      cmd.TeacherID,
		Type:        credit.TypeEarned,
		Amount:      reward,
		Source:      credit.SourceSessionTeaching,
		Description: fmt.Sprintf("Taught %s", cmd.Skill),
		Metadata: map[string]any{
			"session_id":       cmd.SessionID,
			"skill":            cmd.Skill,
			"rating":           cmd.Rating,
			"duration_minutes": cmd.DurationMinutes,
			"base_rate":        baseRate,
		},
		IdempotencyKey: sessionKey(cmd.SessionID, "teacher"),
		CorrelationID:  cmd.CorrelationID,
	})
	if err != nil {
		return nil, fmt.Errorf("complete_session: teacher reward: %w", err)
	}
	result.TeacherBalance = teacherRes.Balance
	if teacherRes.Replayed {
		result.TeacherReward = teacherRes.Transaction.Amount
	}

	learnerRes, err := h.ledger.AddCredits(ctx, AddCreditsCommand{
		UserID:         cmd.LearnerID,
		Type:           credit.TypeBonus,
		Amount:         h.policy.LearnerBonus,
		Source:         credit.SourceSessionLearning,
		Description:    fmt.Sprintf("Completed a %s session", cmd.Skill),
		Metadata:       map[string]any{"session_id": cmd.SessionID, "skill": cmd.Skill},
		IdempotencyKey: sessionKey(cmd.SessionID, "learner"),
		CorrelationID:  cmd.CorrelationID,
	})
	if err != nil {
		return nil, fmt.Errorf("complete_session: learner bonus: %w", err)
	}
	result.LearnerBalance = learnerRes.Balance

	settled, err := h.users.SettleSession(ctx, user.SessionSettlement{
		SessionID: cmd.SessionID,
		TeacherID: cmd.TeacherID,
		LearnerID: cmd.LearnerID,
		Rating:    cmd.Rating,
	})
	if err != nil {
		return nil, fmt.Errorf("complete_session: settle profiles: %w", err)
	}
	result.TeacherSessions = settled.TeacherSessions
	result.LearnerSessions = settled.LearnerSessions
	result.TeacherReputation = settled.NewReputation

	if !settled.Applied {
		result.Replayed = true
		return result, nil
	}

	h.publish(cmd, shared.NewSessionCompletedEvent(
		cmd.SessionID, cmd.TeacherID, cmd.LearnerID, cmd.Skill,
		cmd.Rating, cmd.DurationMinutes, result.TeacherReward,
	))
	if settled.OldReputation != settled.NewReputation {
		h.publish(cmd, shared.NewReputationChangedEvent(cmd.TeacherID, settled.OldReputation, settled.NewReputation))
	}

	h.logger.Info("session settled",
		"session_id", cmd.SessionID,
		"teacher_id", cmd.TeacherID,
		"learner_id", cmd.LearnerID,
		"skill", cmd.Skill,
		"reward", result.TeacherReward,
		"base_rate", baseRate,
		"unknown_skill", !known,
	)

	return result, nil
}

func (h *CompleteSessionHandler) publish(cmd CompleteSessionCommand, event shared.Event) {
	switch e := event.(type) {
	case shared.SessionCompletedEvent:
		if cmd.CorrelationID != "" {
			e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		event = e
	case shared.ReputationChangedEvent:
		if cmd.CorrelationID != "" {
			e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		event = e
	}
	if err := h.publisher.Publish(event); err != nil {
		h.logger.Warn("failed to publish event",
			"event_type", event.EventType(),
			"session_id", cmd.SessionID,
			"error", err,
		)
	}
}

func sessionKey(sessionID, role string) string {
	return "session:" + sessionID + ":" + role
}
