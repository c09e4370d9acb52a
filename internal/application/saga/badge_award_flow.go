// Package saga contains complex business processes that orchestrate
// multiple domain operations in a coordinated manner.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/application/command"
	"github.com/skillswap-hub/skillswap-core/internal/domain/badge"
	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE AWARD FLOW SAGA
// Flow: Load User → Evaluate Catalog → Post Ledger Reward →
//
//	Append Badge (if absent) → Publish Event
//
// The user's badge list is the only record of "already earned", so the reward
// is posted first under the idempotency key badge:<user>:<id>. A run that
// fails after the reward leaves the badge unheld; the next run replays the
// reward and appends. Appending is append-if-absent in the store, so
// concurrent runs for the same user award each badge once.
// ══════════════════════════════════════════════════════════════════════════════

// RewardPoster posts badge rewards to the ledger.
type RewardPoster interface {
	AddCredits(ctx context.Context, cmd command.AddCreditsCommand) (*credit.PostResult, error)
}

// BadgeMetrics records awarded badges.
type BadgeMetrics interface {
	BadgeAwarded(badgeID, rarity string)
}

type nopBadgeMetrics struct{}

func (nopBadgeMetrics) BadgeAwarded(string, string) {}

// BadgeAwardInput contains the data needed for one run.
type BadgeAwardInput struct {
	UserID string

	// Kinds restricts evaluation to these criteria types. Empty means full catalog.
	Kinds []badge.CriteriaType

	// BadgeID selects a single special badge (manual path).
	BadgeID string

	CorrelationID string
}

// Validate checks if the input is valid.
func (i BadgeAwardInput) Validate() error {
	if strings.TrimSpace(i.UserID) == "" {
		return errors.New("badge_award_flow: user ID is required")
	}
	return nil
}

// BadgeAwardResult contains the result of one run.
type BadgeAwardResult struct {
	UserID string

	// Awarded are the badges newly added to the user's list by this run.
	Awarded []user.Badge

	// TotalReward is the sum of rewards for the badges in Awarded.
	TotalReward int

	ProcessedAt time.Time
}

// HasNewBadges returns true if any badge was awarded.
func (r *BadgeAwardResult) HasNewBadges() bool {
	return len(r.Awarded) > 0
}

// BadgeAwardStep represents a step in the flow.
type BadgeAwardStep string

const (
	StepLoadUser       BadgeAwardStep = "load_user"
	StepEvaluate       BadgeAwardStep = "evaluate"
	StepPostReward     BadgeAwardStep = "post_reward"
	StepAppendBadge    BadgeAwardStep = "append_badge"
	StepPublishEvents  BadgeAwardStep = "publish_events"
	StepBadgesComplete BadgeAwardStep = "complete"
)

// BadgeAwardState tracks the current state of a run.
type BadgeAwardState struct {
	CurrentStep BadgeAwardStep
	Input       BadgeAwardInput
	User        *user.User
	Candidates  []badge.Definition
	Awarded     []awarded
	TotalReward int
	Manual      bool
	StartedAt   time.Time
	Error       error
	FailedStep  BadgeAwardStep
}

type awarded struct {
	def    badge.Definition
	badge  user.Badge
	reward int
}

// BadgeAwardConfig contains configuration for the flow.
type BadgeAwardConfig struct {
	// Incremental enables criteria-kind filtering for event-driven checks.
	// When off every check rescans the whole catalog.
	Incremental bool
}

// DefaultBadgeAwardConfig returns default configuration.
func DefaultBadgeAwardConfig() BadgeAwardConfig {
	return BadgeAwardConfig{Incremental: true}
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE AWARD FLOW IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BadgeAwardFlow evaluates the badge catalog against a user and grants new badges.
type BadgeAwardFlow struct {
	users     user.Repository
	catalog   *badge.Catalog
	rewards   RewardPoster
	policy    credit.RewardPolicy
	publisher shared.EventPublisher
	metrics   BadgeMetrics
	logger    *slog.Logger
	now       func() time.Time

	incremental bool
}

// NewBadgeAwardFlow creates a new flow with all dependencies.
func NewBadgeAwardFlow(
	users user.Repository,
	catalog *badge.Catalog,
	rewards RewardPoster,
	policy credit.RewardPolicy,
	publisher shared.EventPublisher,
	metrics BadgeMetrics,
	logger *slog.Logger,
	config BadgeAwardConfig,
) *BadgeAwardFlow {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if metrics == nil {
		metrics = nopBadgeMetrics{}
	}
	return &BadgeAwardFlow{
		users:       users,
		catalog:     catalog,
		rewards:     rewards,
		policy:      policy,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger.With("saga", "badge_award"),
		now:         func() time.Time { return time.Now().UTC() },
		incremental: config.Incremental,
	}
}

// Catalog returns the catalog the flow evaluates against.
func (f *BadgeAwardFlow) Catalog() *badge.Catalog {
	return f.catalog
}

// EvaluateAndAward rescans the whole catalog for the user and returns newly awarded badges.
func (f *BadgeAwardFlow) EvaluateAndAward(ctx context.Context, userID string) (*BadgeAwardResult, error) {
	return f.Execute(ctx, BadgeAwardInput{UserID: userID})
}

// EvaluateFor checks only the given criteria kinds when incremental mode is on.
func (f *BadgeAwardFlow) EvaluateFor(ctx context.Context, userID string, kinds ...badge.CriteriaType) (*BadgeAwardResult, error) {
	input := BadgeAwardInput{UserID: userID}
	if f.incremental {
		input.Kinds = kinds
	}
	return f.Execute(ctx, input)
}

// AwardSpecial grants a special-criteria badge. Returns false when the user
// already holds it.
func (f *BadgeAwardFlow) AwardSpecial(ctx context.Context, userID, badgeID string) (bool, error) {
	res, err := f.Execute(ctx, BadgeAwardInput{UserID: userID, BadgeID: badgeID})
	if err != nil {
		return false, err
	}
	return res.HasNewBadges(), nil
}

// Execute runs the flow.
func (f *BadgeAwardFlow) Execute(ctx context.Context, input BadgeAwardInput) (*BadgeAwardResult, error) {
	state := &BadgeAwardState{
		CurrentStep: StepLoadUser,
		Input:       input,
		Manual:      input.BadgeID != "",
		StartedAt:   f.now(),
	}

	if err := input.Validate(); err != nil {
		state.FailedStep = StepLoadUser
		return nil, f.wrapError(state, err)
	}

	// Step 1: Load user
	if err := f.stepLoadUser(ctx, state); err != nil {
		return nil, f.wrapError(state, err)
	}

	// Step 2: Evaluate
	state.CurrentStep = StepEvaluate
	if err := f.stepEvaluate(state); err != nil {
		return nil, f.wrapError(state, err)
	}

	// Step 3 + 4: Post each reward, then append the badge
	for _, def := range state.Candidates {
		if state.User.HasBadge(def.ID) {
			continue
		}
		state.CurrentStep = StepPostReward
		if err := f.stepRewardAndAppend(ctx, state, def); err != nil {
			return f.result(state), f.wrapError(state, err)
		}
	}

	// Step 5: Publish
	state.CurrentStep = StepPublishEvents
	f.stepPublishEvents(state)

	state.CurrentStep = StepBadgesComplete
	return f.result(state), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

func (f *BadgeAwardFlow) stepLoadUser(ctx context.Context, state *BadgeAwardState) error {
	u, err := f.users.GetByID(ctx, state.Input.UserID)
	if err != nil {
		state.FailedStep = StepLoadUser
		state.Error = fmt.Errorf("failed to load user: %w", err)
		return state.Error
	}
	state.User = u
	return nil
}

func (f *BadgeAwardFlow) stepEvaluate(state *BadgeAwardState) error {
	if !state.Manual {
		state.Candidates = badge.Evaluate(state.User, f.catalog, state.Input.Kinds...)
		return nil
	}

	def, ok := f.catalog.Get(state.Input.BadgeID)
	if !ok {
		state.FailedStep = StepEvaluate
		state.Error = shared.ErrBadgeNotFound
		return state.Error
	}
	if !def.IsManual() {
		state.FailedStep = StepEvaluate
		state.Error = shared.ErrBadgeNotManual
		return state.Error
	}
	state.Candidates = []badge.Definition{def}
	return nil
}

func (f *BadgeAwardFlow) stepRewardAndAppend(ctx context.Context, state *BadgeAwardState, def badge.Definition) error {
	reward := f.policy.BadgeReward(def.Points)
	if reward > 0 {
		_, err := f.rewards.AddCredits(ctx, command.AddCreditsCommand{
			UserID:         state.User.ID,
			Type:           credit.TypeBonus,
			Amount:         reward,
			Source:         credit.SourceBadgeEarned,
			Description:    "Badge: " + def.Name,
			Metadata:       map[string]any{"badge_id": def.ID, "points": def.Points},
			IdempotencyKey: badgeRewardKey(state.User.ID, def.ID),
			CorrelationID:  state.Input.CorrelationID,
		})
		if err != nil {
			state.FailedStep = StepPostReward
			state.Error = fmt.Errorf("failed to post reward for badge %s: %w", def.ID, err)
			return state.Error
		}
	}

	state.CurrentStep = StepAppendBadge
	b := def.ToBadge(f.now())
	added, err := f.users.AppendBadge(ctx, state.User.ID, b)
	if err != nil {
		state.FailedStep = StepAppendBadge
		state.Error = fmt.Errorf("failed to append badge %s: %w", def.ID, err)
		return state.Error
	}
	if !added {
		// Another run got there first and reports the award.
		f.logger.Debug("badge already held", "user_id", state.User.ID, "badge_id", def.ID)
		return nil
	}

	state.Awarded = append(state.Awarded, awarded{def: def, badge: b, reward: reward})
	state.TotalReward += reward
	f.metrics.BadgeAwarded(def.ID, string(def.Rarity))
	f.logger.Info("badge awarded",
		"user_id", state.User.ID,
		"badge_id", def.ID,
		"rarity", def.Rarity,
		"reward", reward,
		"manual", state.Manual,
	)
	return nil
}

func (f *BadgeAwardFlow) stepPublishEvents(state *BadgeAwardState) {
	for _, a := range state.Awarded {
		event := shared.NewBadgeAwardedEvent(
			state.User.ID, a.def.ID, a.def.Name, string(a.def.Rarity), a.reward, state.Manual,
		)
		if state.Input.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(state.Input.CorrelationID)
		}
		if err := f.publisher.Publish(event); err != nil {
			f.logger.Warn("failed to publish badge event",
				"user_id", state.User.ID,
				"badge_id", a.def.ID,
				"error", err,
			)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

func (f *BadgeAwardFlow) result(state *BadgeAwardState) *BadgeAwardResult {
	badges := make([]user.Badge, 0, len(state.Awarded))
	for _, a := range state.Awarded {
		badges = append(badges, a.badge)
	}
	return &BadgeAwardResult{
		UserID:      state.Input.UserID,
		Awarded:     badges,
		TotalReward: state.TotalReward,
		ProcessedAt: f.now(),
	}
}

func (f *BadgeAwardFlow) wrapError(state *BadgeAwardState, err error) error {
	return &BadgeAwardError{
		Step:    state.FailedStep,
		UserID:  state.Input.UserID,
		Cause:   err,
		Message: fmt.Sprintf("badge award flow failed at step '%s': %v", state.FailedStep, err),
	}
}

func badgeRewardKey(userID, badgeID string) string {
	return "badge:" + userID + ":" + badgeID
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// BadgeAwardError represents an error during the flow.
type BadgeAwardError struct {
	Step    BadgeAwardStep
	UserID  string
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *BadgeAwardError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *BadgeAwardError) Unwrap() error {
	return e.Cause
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE AWARD FLOW BUILDER (Fluent API)
// ══════════════════════════════════════════════════════════════════════════════

// BadgeAwardFlowBuilder provides a fluent API for building BadgeAwardFlow.
type BadgeAwardFlowBuilder struct {
	users     user.Repository
	catalog   *badge.Catalog
	rewards   RewardPoster
	policy    credit.RewardPolicy
	publisher shared.EventPublisher
	metrics   BadgeMetrics
	logger    *slog.Logger
	config    BadgeAwardConfig
}

// NewBadgeAwardFlowBuilder creates a new builder.
func NewBadgeAwardFlowBuilder() *BadgeAwardFlowBuilder {
	return &BadgeAwardFlowBuilder{
		policy: credit.DefaultRewardPolicy(),
		config: DefaultBadgeAwardConfig(),
	}
}

// WithUsers sets the user repository.
func (b *BadgeAwardFlowBuilder) WithUsers(repo user.Repository) *BadgeAwardFlowBuilder {
	b.users = repo
	return b
}

// WithCatalog sets the badge catalog.
func (b *BadgeAwardFlowBuilder) WithCatalog(c *badge.Catalog) *BadgeAwardFlowBuilder {
	b.catalog = c
	return b
}

// WithRewards sets the ledger used for badge rewards.
func (b *BadgeAwardFlowBuilder) WithRewards(r RewardPoster) *BadgeAwardFlowBuilder {
	b.rewards = r
	return b
}

// WithPolicy sets the reward policy.
func (b *BadgeAwardFlowBuilder) WithPolicy(p credit.RewardPolicy) *BadgeAwardFlowBuilder {
	b.policy = p
	return b
}

// WithPublisher sets the event publisher.
func (b *BadgeAwardFlowBuilder) WithPublisher(p shared.EventPublisher) *BadgeAwardFlowBuilder {
	b.publisher = p
	return b
}

// WithMetrics sets the metrics recorder.
func (b *BadgeAwardFlowBuilder) WithMetrics(m BadgeMetrics) *BadgeAwardFlowBuilder {
	b.metrics = m
	return b
}

// WithLogger sets the logger.
func (b *BadgeAwardFlowBuilder) WithLogger(l *slog.Logger) *BadgeAwardFlowBuilder {
	b.logger = l
	return b
}

// WithConfig sets the configuration.
func (b *BadgeAwardFlowBuilder) WithConfig(c BadgeAwardConfig) *BadgeAwardFlowBuilder {
	b.config = c
	return b
}

// Build creates the flow.
func (b *BadgeAwardFlowBuilder) Build() (*BadgeAwardFlow, error) {
	if b.users == nil {
		return nil, errors.New("badge_award_flow: user repository is required")
	}
	if b.rewards == nil {
		return nil, errors.New("badge_award_flow: reward poster is required")
	}
	if b.catalog == nil {
		b.catalog = badge.MustDefaultCatalog()
	}
	return NewBadgeAwardFlow(b.users, b.catalog, b.rewards, b.policy, b.publisher, b.metrics, b.logger, b.config), nil
}
