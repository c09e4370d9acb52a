package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPSERT EARNING RATES COMMAND
// Batch upsert-by-skill-name of the earning-rate table, followed by a
// refresh of the in-process snapshot.
// ══════════════════════════════════════════════════════════════════════════════

// RateRefresher reloads the current rate snapshot.
type RateRefresher interface {
	Refresh(ctx context.Context) error
}

// UpsertEarningRatesCommand contains the batch.
type UpsertEarningRatesCommand struct {
	Rates         []rate.SkillEarningRate
	CorrelationID string
}

// Validate checks every entry and reports all problems at once.
func (c UpsertEarningRatesCommand) Validate() error {
	if len(c.Rates) == 0 {
		return shared.WrapError("rate", "UpsertBatch", shared.ErrEmptyValue, "no rates given", shared.ErrInvalidEarningRate)
	}
	var errs []error
	for _, r := range c.Rates {
		if err := r.Normalize().Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UpsertEarningRatesResult contains the outcome.
type UpsertEarningRatesResult struct {
	Upserted int
	Skills   []string
}

// UpsertEarningRatesHandler handles the UpsertEarningRatesCommand.
type UpsertEarningRatesHandler struct {
	repo      rate.Repository
	refresher RateRefresher
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewUpsertEarningRatesHandler creates a new handler. refresher may be nil.
func NewUpsertEarningRatesHandler(
	repo rate.Repository,
	refresher RateRefresher,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *UpsertEarningRatesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &UpsertEarningRatesHandler{
		repo:      repo,
		refresher: refresher,
		publisher: publisher,
		logger:    logger.With("handler", "upsert_earning_rates"),
	}
}

// Handle executes the command.
func (h *UpsertEarningRatesHandler) Handle(ctx context.Context, cmd UpsertEarningRatesCommand) (*UpsertEarningRatesResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	n, err := h.repo.UpsertBatch(ctx, cmd.Rates)
	if err != nil {
		return nil, fmt.Errorf("upsert_earning_rates: %w", err)
	}

	skills := make([]string, 0, len(cmd.Rates))
	for _, r := range cmd.Rates {
		skills = append(skills, r.Normalize().SkillName)
	}

	if h.refresher != nil {
		if err := h.refresher.Refresh(ctx); err != nil {
			h.logger.Warn("rate snapshot refresh failed", "error", err)
		}
	}

	event := shared.NewRatesUpdatedEvent(skills)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if err := h.publisher.Publish(event); err != nil {
		h.logger.Warn("failed to publish rates.updated", "error", err)
	}

	h.logger.Info("earning rates upserted", "count", n)
	return &UpsertEarningRatesResult{Upserted: n, Skills: skills}, nil
}
