package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE COMMANDS
// Create and edit the profile fields the matching engine reads.
// Balance, badges and counters are owned by the ledger and session flows.
// ══════════════════════════════════════════════════════════════════════════════

// CreateUserCommand contains a new profile.
type CreateUserCommand struct {
	ID          string
	DisplayName string
	Offered     []string
	Wanted      []string
	Level       int
	Location    string
	IsVerified  bool
	Status      user.AvailabilityStatus
}

// UpdateProfileCommand contains a partial profile edit. Nil fields are kept.
type UpdateProfileCommand struct {
	UserID      string
	DisplayName *string
	Offered     *[]string
	Wanted      *[]string
	Level       *int
	Location    *string
	IsVerified  *bool
	Status      *user.AvailabilityStatus

	CorrelationID string
}

// Validate validates the command.
func (c UpdateProfileCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if c.Level != nil && *c.Level < 0 {
		return shared.NewDomainError("user", "Update", shared.ErrNegativeValue, "level cannot be negative")
	}
	if c.Status != nil && !c.Status.IsValid() {
		return shared.ErrInvalidStatus
	}
	return nil
}

// ProfileHandler handles profile commands.
type ProfileHandler struct {
	users     user.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(users user.Repository, publisher shared.EventPublisher, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &ProfileHandler{
		users:     users,
		publisher: publisher,
		logger:    logger.With("handler", "profile"),
	}
}

// Create registers a new user with a zero balance.
func (h *ProfileHandler) Create(ctx context.Context, cmd CreateUserCommand) (*user.User, error) {
	u, err := user.NewUser(user.NewUserParams{
		ID:          cmd.ID,
		DisplayName: cmd.DisplayName,
		Skills:      user.Skills{Offered: cmd.Offered, Wanted: cmd.Wanted},
		Level:       cmd.Level,
		Location:    cmd.Location,
		IsVerified:  cmd.IsVerified,
		Status:      cmd.Status,
	})
	if err != nil {
		return nil, err
	}
	if err := h.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create_user: %w", err)
	}

	h.logger.Info("user created", "user_id", u.ID, "skills", u.Skills.Count())
	if u.Skills.Count() > 0 {
		h.publishSkills(u, "")
	}
	return u, nil
}

// Update applies a partial profile edit.
func (h *ProfileHandler) Update(ctx context.Context, cmd UpdateProfileCommand) (*user.User, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	u, err := h.users.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("update_profile: %w", err)
	}

	if cmd.DisplayName != nil && strings.TrimSpace(*cmd.DisplayName) != "" {
		u.DisplayName = strings.TrimSpace(*cmd.DisplayName)
	}
	if cmd.Level != nil {
		u.Level = *cmd.Level
	}
	if cmd.Location != nil {
		u.Location = strings.TrimSpace(*cmd.Location)
	}
	if cmd.IsVerified != nil {
		u.IsVerified = *cmd.IsVerified
	}
	if cmd.Status != nil {
		if err := u.SetAvailability(*cmd.Status); err != nil {
			return nil, err
		}
	}

	skillsChanged := false
	if cmd.Offered != nil || cmd.Wanted != nil {
		next := u.Skills
		if cmd.Offered != nil {
			next.Offered = *cmd.Offered
		}
		if cmd.Wanted != nil {
			next.Wanted = *cmd.Wanted
		}
		skillsChanged = u.SetSkills(next)
	}
	u.Touch(time.Now().UTC())

	if err := h.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update_profile: %w", err)
	}

	if skillsChanged {
		h.publishSkills(u, cmd.CorrelationID)
	}
	return h.users.GetByID(ctx, cmd.UserID)
}

func (h *ProfileHandler) publishSkills(u *user.User, correlationID string) {
	event := shared.NewSkillsChangedEvent(u.ID, u.Skills.Offered, u.Skills.Wanted)
	if correlationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
	}
	if err := h.publisher.Publish(event); err != nil {
		h.logger.Warn("failed to publish skills change", "user_id", u.ID, "error", err)
	}
}
