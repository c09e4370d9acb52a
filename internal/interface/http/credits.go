package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/skillswap-hub/skillswap-core/internal/application/command"
	"github.com/skillswap-hub/skillswap-core/internal/application/query"
	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// TransactionResponse is one ledger entry.
type TransactionResponse struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"user_id"`
	Type           credit.TransactionType `json:"type"`
	Amount         int                    `json:"amount"`
	Source         credit.Source          `json:"source"`
	Description    string                 `json:"description,omitempty"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	BalanceAfter   int                    `json:"balance_after"`
	CreatedAt      time.Time              `json:"created_at"`
}

func toTransactionResponse(tx *credit.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:             tx.ID,
		UserID:         tx.UserID,
		Type:           tx.Type,
		Amount:         tx.Amount,
		Source:         tx.Source,
		Description:    tx.Description,
		Metadata:       tx.Metadata,
		IdempotencyKey: tx.IdempotencyKey,
		BalanceAfter:   tx.BalanceAfter,
		CreatedAt:      tx.CreatedAt,
	}
}

// PostResponse is returned by every ledger mutation.
type PostResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Balance     int                 `json:"balance"`
	Replayed    bool                `json:"replayed"`
}

// writePostResult answers 201 for a new entry and 200 for a replay.
func writePostResult(w http.ResponseWriter, res *credit.PostResult) {
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, PostResponse{
		Transaction: toTransactionResponse(res.Transaction),
		Balance:     res.Balance,
		Replayed:    res.Replayed,
	})
}

type earnRequest struct {
	Type           string         `json:"type"`
	Amount         int            `json:"amount"`
	Source         string         `json:"source"`
	Description    string         `json:"description"`
	Metadata       map[string]any `json:"metadata"`
	IdempotencyKey string         `json:"idempotency_key"`
}

func (s *Server) handleEarnCredits(w http.ResponseWriter, r *http.Request) {
	var req earnRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.deps.Ledger.AddCredits(r.Context(), command.AddCreditsCommand{
		UserID:         pathUser(r),
		Type:           credit.TransactionType(req.Type),
		Amount:         req.Amount,
		Source:         credit.Source(req.Source),
		Description:    req.Description,
		Metadata:       req.Metadata,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
		CorrelationID:  middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writePostResult(w, res)
}

type spendRequest struct {
	Amount         int            `json:"amount"`
	Source         string         `json:"source"`
	Description    string         `json:"description"`
	Metadata       map[string]any `json:"metadata"`
	IdempotencyKey string         `json:"idempotency_key"`
}

func (s *Server) handleSpendCredits(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.deps.Ledger.SpendCredits(r.Context(), command.SpendCreditsCommand{
		UserID:         pathUser(r),
		Amount:         req.Amount,
		Source:         credit.Source(req.Source),
		Description:    req.Description,
		Metadata:       req.Metadata,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
		CorrelationID:  middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writePostResult(w, res)
}

type penalizeRequest struct {
	Amount         int    `json:"amount"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) handlePenalize(w http.ResponseWriter, r *http.Request) {
	var req penalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.deps.Ledger.Penalize(r.Context(), command.PenaltyCommand{
		UserID:         pathUser(r),
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
		CorrelationID:  middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writePostResult(w, res)
}

func (s *Server) handleEarningStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.EarningStats.Handle(r.Context(), query.GetEarningStatsQuery{
		UserID:   pathUser(r),
		Location: s.config.Location,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := pathUser(r)
	if _, err := s.deps.Users.GetByID(r.Context(), userID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	txs, err := s.deps.Journal.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS
// ══════════════════════════════════════════════════════════════════════════════

type completeSessionRequest struct {
	SessionID       string  `json:"session_id"`
	TeacherID       string  `json:"teacher_id"`
	LearnerID       string  `json:"learner_id"`
	Skill           string  `json:"skill"`
	Rating          float64 `json:"rating"`
	DurationMinutes int     `json:"duration_minutes"`
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	var req completeSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.deps.CompleteSession.Handle(r.Context(), command.CompleteSessionCommand{
		SessionID:       req.SessionID,
		TeacherID:       req.TeacherID,
		LearnerID:       req.LearnerID,
		Skill:           req.Skill,
		Rating:          req.Rating,
		DurationMinutes: req.DurationMinutes,
		CorrelationID:   middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":         res.SessionID,
		"teacher_reward":     res.TeacherReward,
		"base_rate":          res.BaseRate,
		"unknown_skill":      res.UnknownSkill,
		"learner_bonus":      res.LearnerBonus,
		"teacher_balance":    res.TeacherBalance,
		"learner_balance":    res.LearnerBalance,
		"teacher_sessions":   res.TeacherSessions,
		"learner_sessions":   res.LearnerSessions,
		"teacher_reputation": res.TeacherReputation,
		"replayed":           res.Replayed,
		"completed_at":       res.CompletedAt,
	})
}

type streakRequest struct {
	StreakDays int `json:"streak_days"`

	// Day is YYYY-MM-DD; empty means today.
	Day string `json:"day"`
}

func (s *Server) handleApplyStreak(w http.ResponseWriter, r *http.Request) {
	var req streakRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	cmd := command.ApplyDailyStreakCommand{
		UserID:        pathUser(r),
		StreakDays:    req.StreakDays,
		CorrelationID: middleware.GetReqID(r.Context()),
	}
	if req.Day != "" {
		day, err := time.ParseInLocation("2006-01-02", req.Day, s.config.Location)
		if err != nil {
			s.writeDomainError(w, r, shared.WrapError("http", "ApplyStreak", shared.ErrInvalidInput, "day must be YYYY-MM-DD", err))
			return
		}
		cmd.Day = day
	}
	res, err := s.deps.Streaks.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reward":   res.Reward,
		"balance":  res.Balance,
		"skipped":  res.Skipped,
		"replayed": res.Replayed,
	})
}

type verifySkillRequest struct {
	Skill string `json:"skill"`
}

func (s *Server) handleVerifySkill(w http.ResponseWriter, r *http.Request) {
	var req verifySkillRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.deps.VerifySkill.Handle(r.Context(), command.VerifySkillCommand{
		UserID:        pathUser(r),
		Skill:         req.Skill,
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"skill":    res.Skill,
		"category": res.Category,
		"reward":   res.Reward,
		"balance":  res.Balance,
		"replayed": res.Replayed,
	})
}

type contributionRequest struct {
	Kind           string `json:"kind"`
	ContributionID string `json:"contribution_id"`
}

func (s *Server) handleRecordContribution(w http.ResponseWriter, r *http.Request) {
	var req contributionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.deps.Contributions.Handle(r.Context(), command.RecordContributionCommand{
		UserID:         pathUser(r),
		Kind:           credit.ContributionKind(req.Kind),
		ContributionID: req.ContributionID,
		CorrelationID:  middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reward":   res.Reward,
		"balance":  res.Balance,
		"replayed": res.Replayed,
	})
}
