// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/skillswap-hub/skillswap-core/internal/application/saga"
	"github.com/skillswap-hub/skillswap-core/internal/domain/badge"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// BADGE TRIGGER HANDLER
// Перепроверяет значки только при событиях, которые могут изменить
// квалифицирующее состояние пользователя:
//   - session.completed            → условия по сессиям (оба участника)
//   - profile.reputation_changed   → условия по рейтингу
//   - profile.skills_changed       → условия по навыкам
// ═══════════════════════════════════════════════════════════════════════════

// BadgeEvaluator - часть саги значков, нужная обработчику.
type BadgeEvaluator interface {
	EvaluateFor(ctx context.Context, userID string, kinds ...badge.CriteriaType) (*saga.BadgeAwardResult, error)
}

// BadgeTriggerHandler запускает оценку значков по доменным событиям.
type BadgeTriggerHandler struct {
	evaluator BadgeEvaluator
	logger    *slog.Logger
	timeout   time.Duration
}

// NewBadgeTriggerHandler создаёт обработчик.
func NewBadgeTriggerHandler(evaluator BadgeEvaluator, logger *slog.Logger) *BadgeTriggerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgeTriggerHandler{
		evaluator: evaluator,
		logger:    logger.With("handler", "badge_trigger"),
		timeout:   10 * time.Second,
	}
}

// EventTypes возвращает события, на которые нужно подписать обработчик.
func (h *BadgeTriggerHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventSessionCompleted,
		shared.EventReputationChanged,
		shared.EventSkillsChanged,
	}
}

// Subscribe подписывает обработчик на все нужные события.
func (h *BadgeTriggerHandler) Subscribe(sub shared.EventSubscriber) error {
	for _, t := range h.EventTypes() {
		if err := sub.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle обрабатывает событие.
// Реализует интерфейс shared.EventHandler.
func (h *BadgeTriggerHandler) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var (
		users []string
		kind  badge.CriteriaType
	)
	switch event.EventType() {
	case shared.EventSessionCompleted:
		users = sessionParticipants(event)
		kind = badge.CriteriaSessions
	case shared.EventReputationChanged:
		users = []string{event.AggregateID()}
		kind = badge.CriteriaRating
	case shared.EventSkillsChanged:
		users = []string{event.AggregateID()}
		kind = badge.CriteriaSkills
	default:
		h.logger.Warn("unexpected event", "event_type", event.EventType())
		return nil
	}

	var errs []error
	for _, userID := range users {
		if userID == "" {
			continue
		}
		res, err := h.evaluator.EvaluateFor(ctx, userID, kind)
		if err != nil {
			h.logger.Error("badge evaluation failed",
				"user_id", userID,
				"event_type", event.EventType(),
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		if res.HasNewBadges() {
			h.logger.Info("badges awarded from event",
				"user_id", userID,
				"event_type", event.EventType(),
				"count", len(res.Awarded),
				"reward", res.TotalReward,
			)
		}
	}
	return errors.Join(errs...)
}

// sessionParticipants достаёт участников как из типизированного события,
// так и из события, восстановленного из транспорта (Redis).
func sessionParticipants(event shared.Event) []string {
	if e, ok := event.(shared.SessionCompletedEvent); ok {
		return e.Participants()
	}
	payload := event.Payload()
	teacher, _ := payload["teacher_id"].(string)
	learner, _ := payload["learner_id"].(string)
	return []string{teacher, learner}
}
