package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Badge evaluation and metrics react to these.
const (
	// Session events
	EventSessionCompleted EventType = "session.completed"

	// Ledger events
	EventCreditsEarned EventType = "credits.earned"
	EventCreditsSpent  EventType = "credits.spent"

	// Badge events
	EventBadgeAwarded EventType = "badge.awarded"

	// Profile events
	EventReputationChanged EventType = "profile.reputation_changed"
	EventSkillsChanged     EventType = "profile.skills_changed"

	// Configuration events
	EventRatesUpdated EventType = "rates.updated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionCompletedEvent is emitted after both participants of a session were credited.
type SessionCompletedEvent struct {
	BaseEvent
	TeacherID       string  `json:"teacher_id"`
	LearnerID       string  `json:"learner_id"`
	Skill           string  `json:"skill"`
	Rating          float64 `json:"rating"`
	DurationMinutes int     `json:"duration_minutes"`
	TeacherReward   int     `json:"teacher_reward"`
}

// Payload implements Event interface.
func (e SessionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"teacher_id":       e.TeacherID,
		"learner_id":       e.LearnerID,
		"skill":            e.Skill,
		"rating":           e.Rating,
		"duration_minutes": e.DurationMinutes,
		"teacher_reward":   e.TeacherReward,
	}
}

// Participants returns both users of the session.
func (e SessionCompletedEvent) Participants() []string {
	return []string{e.TeacherID, e.LearnerID}
}

// NewSessionCompletedEvent creates a new SessionCompletedEvent.
func NewSessionCompletedEvent(sessionID, teacherID, learnerID, skill string, rating float64, minutes, reward int) SessionCompletedEvent {
	return SessionCompletedEvent{
		BaseEvent:       NewBaseEvent(EventSessionCompleted, sessionID),
		TeacherID:       teacherID,
		LearnerID:       learnerID,
		Skill:           skill,
		Rating:          rating,
		DurationMinutes: minutes,
		TeacherReward:   reward,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// CreditsPostedEvent is emitted for every committed ledger transaction.
type CreditsPostedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	TxType        string `json:"tx_type"`
	Source        string `json:"source"`
	Amount        int    `json:"amount"`
	BalanceAfter  int    `json:"balance_after"`
}

// Payload implements Event interface.
func (e CreditsPostedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": e.TransactionID,
		"tx_type":        e.TxType,
		"source":         e.Source,
		"amount":         e.Amount,
		"balance_after":  e.BalanceAfter,
	}
}

// NewCreditsPostedEvent creates a CreditsPostedEvent. Debits use EventCreditsSpent.
func NewCreditsPostedEvent(userID, txID, txType, source string, amount, balance int, debit bool) CreditsPostedEvent {
	eventType := EventCreditsEarned
	if debit {
		eventType = EventCreditsSpent
	}
	return CreditsPostedEvent{
		BaseEvent:     NewBaseEvent(eventType, userID),
		TransactionID: txID,
		TxType:        txType,
		Source:        source,
		Amount:        amount,
		BalanceAfter:  balance,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge Events
// ═══════════════════════════════════════════════════════════════════════════

// BadgeAwardedEvent is emitted when a badge lands in a user's badge list.
type BadgeAwardedEvent struct {
	BaseEvent
	BadgeID string `json:"badge_id"`
	Name    string `json:"name"`
	Rarity  string `json:"rarity"`
	Reward  int    `json:"reward"`
	Manual  bool   `json:"manual"`
}

// Payload implements Event interface.
func (e BadgeAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"badge_id": e.BadgeID,
		"name":     e.Name,
		"rarity":   e.Rarity,
		"reward":   e.Reward,
		"manual":   e.Manual,
	}
}

// NewBadgeAwardedEvent creates a new BadgeAwardedEvent.
func NewBadgeAwardedEvent(userID, badgeID, name, rarity string, reward int, manual bool) BadgeAwardedEvent {
	return BadgeAwardedEvent{
		BaseEvent: NewBaseEvent(EventBadgeAwarded, userID),
		BadgeID:   badgeID,
		Name:      name,
		Rarity:    rarity,
		Reward:    reward,
		Manual:    manual,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Profile Events
// ═══════════════════════════════════════════════════════════════════════════

// ReputationChangedEvent is emitted when a new rating moves a user's reputation.
type ReputationChangedEvent struct {
	BaseEvent
	OldReputation float64 `json:"old_reputation"`
	NewReputation float64 `json:"new_reputation"`
}

// Payload implements Event interface.
func (e ReputationChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_reputation": e.OldReputation,
		"new_reputation": e.NewReputation,
	}
}

// NewReputationChangedEvent creates a new ReputationChangedEvent.
func NewReputationChangedEvent(userID string, oldRep, newRep float64) ReputationChangedEvent {
	return ReputationChangedEvent{
		BaseEvent:     NewBaseEvent(EventReputationChanged, userID),
		OldReputation: oldRep,
		NewReputation: newRep,
	}
}

// SkillsChangedEvent is emitted when offered or wanted skills are edited.
type SkillsChangedEvent struct {
	BaseEvent
	Offered []string `json:"offered"`
	Wanted  []string `json:"wanted"`
}

// Payload implements Event interface.
func (e SkillsChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"offered": e.Offered,
		"wanted":  e.Wanted,
	}
}

// NewSkillsChangedEvent creates a new SkillsChangedEvent.
func NewSkillsChangedEvent(userID string, offered, wanted []string) SkillsChangedEvent {
	return SkillsChangedEvent{
		BaseEvent: NewBaseEvent(EventSkillsChanged, userID),
		Offered:   offered,
		Wanted:    wanted,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Configuration Events
// ═══════════════════════════════════════════════════════════════════════════

// RatesUpdatedEvent is emitted after an earning-rate batch upsert.
type RatesUpdatedEvent struct {
	BaseEvent
	Skills []string `json:"skills"`
}

// Payload implements Event interface.
func (e RatesUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"skills": e.Skills,
	}
}

// NewRatesUpdatedEvent creates a new RatesUpdatedEvent.
func NewRatesUpdatedEvent(skills []string) RatesUpdatedEvent {
	return RatesUpdatedEvent{
		BaseEvent: NewBaseEvent(EventRatesUpdated, "earning_rates"),
		Skills:    skills,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EnvelopeEvent is an Event rebuilt from an EventEnvelope on the receiving side.
type EnvelopeEvent struct {
	BaseEvent
	Data map[string]interface{}
}

// Payload implements Event interface.
func (e EnvelopeEvent) Payload() map[string]interface{} {
	return e.Data
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
