package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skillswap-hub/skillswap-core/internal/application/command"
	"github.com/skillswap-hub/skillswap-core/internal/application/query"
	"github.com/skillswap-hub/skillswap-core/internal/domain/badge"
	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReady pings the stores; 503 until every dependency answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	status := s.deps.Health.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleForbidden(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusForbidden, "forbidden", "admin token required")
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILES
// ══════════════════════════════════════════════════════════════════════════════

// UserResponse is the public profile.
type UserResponse struct {
	ID                string            `json:"id"`
	DisplayName       string            `json:"display_name"`
	Skills            user.Skills       `json:"skills"`
	Reputation        float64           `json:"reputation"`
	ReviewCount       int               `json:"review_count"`
	Level             int               `json:"level"`
	SessionsCompleted int               `json:"sessions_completed"`
	IsVerified        bool              `json:"is_verified"`
	Availability      user.Availability `json:"availability"`
	Location          string            `json:"location,omitempty"`
	Badges            []user.Badge      `json:"badges"`
	CreditBalance     int               `json:"credit_balance"`
	LastActiveAt      time.Time         `json:"last_active_at"`
	CreatedAt         time.Time         `json:"created_at"`
}

func toUserResponse(u *user.User) UserResponse {
	badges := u.Badges
	if badges == nil {
		badges = []user.Badge{}
	}
	return UserResponse{
		ID:                u.ID,
		DisplayName:       u.DisplayName,
		Skills:            u.Skills,
		Reputation:        u.Reputation,
		ReviewCount:       u.ReviewCount,
		Level:             u.Level,
		SessionsCompleted: u.SessionsCompleted,
		IsVerified:        u.IsVerified,
		Availability:      u.Availability,
		Location:          u.Location,
		Badges:            badges,
		CreditBalance:     u.CreditBalance,
		LastActiveAt:      u.LastActiveAt,
		CreatedAt:         u.CreatedAt,
	}
}

type createUserRequest struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Offered     []string `json:"offered"`
	Wanted      []string `json:"wanted"`
	Level       int      `json:"level"`
	Location    string   `json:"location"`
	IsVerified  bool     `json:"is_verified"`
	Status      string   `json:"status"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	u, err := s.deps.Profiles.Create(r.Context(), command.CreateUserCommand{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		Offered:     req.Offered,
		Wanted:      req.Wanted,
		Level:       req.Level,
		Location:    req.Location,
		IsVerified:  req.IsVerified,
		Status:      user.AvailabilityStatus(req.Status),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Users.GetByID(r.Context(), pathUser(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type updateUserRequest struct {
	DisplayName *string   `json:"display_name"`
	Offered     *[]string `json:"offered"`
	Wanted      *[]string `json:"wanted"`
	Level       *int      `json:"level"`
	Location    *string   `json:"location"`
	IsVerified  *bool     `json:"is_verified"`
	Status      *string   `json:"status"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	cmd := command.UpdateProfileCommand{
		UserID:        pathUser(r),
		DisplayName:   req.DisplayName,
		Offered:       req.Offered,
		Wanted:        req.Wanted,
		Level:         req.Level,
		Location:      req.Location,
		IsVerified:    req.IsVerified,
		CorrelationID: middleware.GetReqID(r.Context()),
	}
	if req.Status != nil {
		st := user.AvailabilityStatus(*req.Status)
		cmd.Status = &st
	}
	u, err := s.deps.Profiles.Update(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCHING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleComputeMatches(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Matches.Handle(r.Context(), query.ComputeMatchesQuery{
		UserID: pathUser(r),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSOS(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.SOS.Handle(r.Context(), query.SOSQuery{
		Skill:       r.URL.Query().Get("skill"),
		RequesterID: r.URL.Query().Get("requester"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleBadgeCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Badges.Catalog().All())
}

func (s *Server) handleBadgeProgress(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Users.GetByID(r.Context(), pathUser(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, badge.ProgressFor(u, s.deps.Badges.Catalog()))
}

type badgeAwardResponse struct {
	UserID      string       `json:"user_id"`
	Awarded     []user.Badge `json:"awarded"`
	TotalReward int          `json:"total_reward"`
}

func (s *Server) handleEvaluateBadges(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Badges.EvaluateAndAward(r.Context(), pathUser(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	awarded := res.Awarded
	if awarded == nil {
		awarded = []user.Badge{}
	}
	writeJSON(w, http.StatusOK, badgeAwardResponse{UserID: res.UserID, Awarded: awarded, TotalReward: res.TotalReward})
}

func (s *Server) handleAwardSpecial(w http.ResponseWriter, r *http.Request) {
	userID := pathUser(r)
	badgeID := chi.URLParam(r, "badgeID")
	awarded, err := s.deps.Badges.AwardSpecial(r.Context(), userID, badgeID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if awarded {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{"user_id": userID, "badge_id": badgeID, "awarded": awarded})
}

// ══════════════════════════════════════════════════════════════════════════════
// EARNING RATES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.deps.Rates.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if rates == nil {
		rates = []rate.SkillEarningRate{}
	}
	writeJSON(w, http.StatusOK, rates)
}

type upsertRatesRequest struct {
	Rates []rate.SkillEarningRate `json:"rates"`
}

func (s *Server) handleUpsertRates(w http.ResponseWriter, r *http.Request) {
	var req upsertRatesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.deps.UpsertRates.Handle(r.Context(), command.UpsertEarningRatesCommand{
		Rates:         req.Rates,
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"upserted": res.Upserted, "skills": res.Skills})
}

// pathUser trims the user ID path parameter. An empty ID fails validation downstream.
func pathUser(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "userID"))
}
