package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

const userColumns = `
	id, display_name, offered, wanted, reputation, review_count, level,
	sessions_completed, is_verified, availability_status, availability_updated_at,
	location, credit_balance, last_active_at, created_at, updated_at
`

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create creates a new user. The balance always starts at zero.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (
			id, display_name, offered, wanted, offered_keys, wanted_keys,
			reputation, review_count, level, sessions_completed, is_verified,
			availability_status, availability_updated_at, location,
			credit_balance, last_active_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 0, $15, $16, $17)
	`

	_, err := r.conn.Exec(ctx, query,
		u.ID,
		u.DisplayName,
		nonNil(u.Skills.Offered),
		nonNil(u.Skills.Wanted),
		skillKeys(u.Skills.Offered),
		skillKeys(u.Skills.Wanted),
		u.Reputation,
		u.ReviewCount,
		u.Level,
		u.SessionsCompleted,
		u.IsVerified,
		string(u.Availability.Status),
		u.Availability.UpdatedAt,
		u.Location,
		u.LastActiveAt,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrUserAlreadyExists
		}
		return storeErr("create user", err)
	}

	return nil
}

// GetByID returns a user with badges and the cached balance.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	row := r.conn.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	u, err := scanUser(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, storeErr("get user", err)
	}

	badges, err := r.loadBadges(ctx, []string{u.ID})
	if err != nil {
		return nil, err
	}
	u.Badges = nonNilBadges(badges[u.ID])
	return u, nil
}

// Update writes the editable profile fields. Badges, balance, session counter
// and reputation are owned by their atomic mutations and left untouched.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	query := `
		UPDATE users SET
			display_name = $1,
			offered = $2,
			wanted = $3,
			offered_keys = $4,
			wanted_keys = $5,
			level = $6,
			is_verified = $7,
			availability_status = $8,
			availability_updated_at = $9,
			location = $10,
			last_active_at = GREATEST(last_active_at, $11),
			updated_at = $12
		WHERE id = $13
	`

	result, err := r.conn.Exec(ctx, query,
		u.DisplayName,
		nonNil(u.Skills.Offered),
		nonNil(u.Skills.Wanted),
		skillKeys(u.Skills.Offered),
		skillKeys(u.Skills.Wanted),
		u.Level,
		u.IsVerified,
		string(u.Availability.Status),
		u.Availability.UpdatedAt,
		u.Location,
		u.LastActiveAt,
		time.Now().UTC(),
		u.ID,
	)
	if err != nil {
		return storeErr("update user", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// FindBySkill returns users teaching the skill.
func (r *UserRepository) FindBySkill(ctx context.Context, skill string, limit int) ([]*user.User, error) {
	return r.Search(ctx, user.Filter{OffersSkill: skill, Limit: limit})
}

// Search returns users matching the filter, most recently active first.
func (r *UserRepository) Search(ctx context.Context, f user.Filter) ([]*user.User, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		where = append(where, "availability_status = "+arg(string(f.Status)))
	}
	if f.MinReputation > 0 {
		where = append(where, "reputation >= "+arg(f.MinReputation))
	}
	if f.OffersSkill != "" {
		where = append(where, arg(shared.SkillKey(f.OffersSkill))+" = ANY(offered_keys)")
	}
	if f.WantsSkill != "" {
		where = append(where, arg(shared.SkillKey(f.WantsSkill))+" = ANY(wanted_keys)")
	}
	if f.Location != "" {
		where = append(where, "lower(location) = "+arg(strings.ToLower(strings.TrimSpace(f.Location))))
	}
	if f.VerifiedOnly {
		where = append(where, "is_verified")
	}
	if len(f.ExcludeIDs) > 0 {
		where = append(where, "NOT (id = ANY("+arg(f.ExcludeIDs)+"))")
	}

	query := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_active_at DESC, id ASC LIMIT " + arg(f.EffectiveLimit())

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("search users", err)
	}
	defer rows.Close()

	users := make([]*user.User, 0)
	ids := make([]string, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storeErr("scan user", err)
		}
		users = append(users, u)
		ids = append(ids, u.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("search users", err)
	}

	badges, err := r.loadBadges(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u.Badges = nonNilBadges(badges[u.ID])
	}
	return users, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Atomic Mutations
// ─────────────────────────────────────────────────────────────────────────────

// IncrementSessions atomically bumps the session counter.
func (r *UserRepository) IncrementSessions(ctx context.Context, id string) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx, `
		UPDATE users SET sessions_completed = sessions_completed + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING sessions_completed
	`, id).Scan(&n)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrUserNotFound
		}
		return 0, storeErr("increment sessions", err)
	}
	return n, nil
}

// ApplyRating folds a rating into the rolling reputation under a row lock.
func (r *UserRepository) ApplyRating(ctx context.Context, id string, rating float64) (float64, float64, error) {
	rt, err := shared.NewRating(rating)
	if err != nil {
		return 0, 0, err
	}

	var oldRep, newRep float64
	err = r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var count int
		err := tx.QueryRow(ctx,
			"SELECT reputation, review_count FROM users WHERE id = $1 FOR UPDATE", id,
		).Scan(&oldRep, &count)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrUserNotFound
			}
			return storeErr("lock user", err)
		}

		newRep = shared.RollingAverage(oldRep, count, rt)
		_, err = tx.Exec(ctx, `
			UPDATE users SET reputation = $1, review_count = review_count + 1, updated_at = NOW()
			WHERE id = $2
		`, newRep, id)
		if err != nil {
			return storeErr("apply rating", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return oldRep, newRep, nil
}

// AppendBadge inserts the badge unless the user already holds it.
// The (user_id, badge_id) primary key makes concurrent appends safe.
func (r *UserRepository) AppendBadge(ctx context.Context, id string, b user.Badge) (bool, error) {
	earnedAt := b.EarnedAt
	if earnedAt.IsZero() {
		earnedAt = time.Now().UTC()
	}

	result, err := r.conn.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_id, name, description, icon, category, earned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, id, b.ID, b.Name, b.Description, b.Icon, b.Category, earnedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, shared.ErrUserNotFound
		}
		return false, storeErr("append badge", err)
	}
	return result.RowsAffected() == 1, nil
}

// SettleSession applies a session to both profiles once. The settled_sessions
// row is written in the same transaction as the counters, so a repeated call
// finds it and changes nothing. Rows are locked in id order.
func (r *UserRepository) SettleSession(ctx context.Context, in user.SessionSettlement) (*user.SettlementResult, error) {
	rt, err := shared.NewRating(in.Rating)
	if err != nil {
		return nil, err
	}

	res := &user.SettlementResult{}
	err = r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, sessions_completed, reputation, review_count
			FROM users WHERE id = ANY($1)
			ORDER BY id
			FOR UPDATE
		`, []string{in.TeacherID, in.LearnerID})
		if err != nil {
			return storeErr("lock participants", err)
		}
		var reviews int
		found := 0
		for rows.Next() {
			var (
				id       string
				sessions int
				rep      float64
				count    int
			)
			if err := rows.Scan(&id, &sessions, &rep, &count); err != nil {
				rows.Close()
				return storeErr("scan participant", err)
			}
			found++
			switch id {
			case in.TeacherID:
				res.TeacherSessions, res.OldReputation, reviews = sessions, rep, count
			case in.LearnerID:
				res.LearnerSessions = sessions
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return storeErr("lock participants", err)
		}
		if found != 2 {
			return shared.ErrUserNotFound
		}
		res.NewReputation = res.OldReputation

		tag, err := tx.Exec(ctx, `
			INSERT INTO settled_sessions (session_id, teacher_id, learner_id, rating)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (session_id) DO NOTHING
		`, in.SessionID, in.TeacherID, in.LearnerID, float64(rt))
		if err != nil {
			return storeErr("record settlement", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		res.Applied = true
		res.NewReputation = shared.RollingAverage(res.OldReputation, reviews, rt)
		if _, err := tx.Exec(ctx, `
			UPDATE users SET
				sessions_completed = sessions_completed + 1,
				reputation = CASE WHEN id = $2 THEN $3 ELSE reputation END,
				review_count = CASE WHEN id = $2 THEN review_count + 1 ELSE review_count END,
				updated_at = NOW()
			WHERE id = ANY($1)
		`, []string{in.TeacherID, in.LearnerID}, in.TeacherID, res.NewReputation); err != nil {
			return storeErr("settle session", err)
		}
		res.TeacherSessions++
		res.LearnerSessions++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Ping checks database connectivity.
func (r *UserRepository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *UserRepository) loadBadges(ctx context.Context, ids []string) (map[string][]user.Badge, error) {
	out := make(map[string][]user.Badge, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.conn.Query(ctx, `
		SELECT user_id, badge_id, name, description, icon, category, earned_at
		FROM user_badges
		WHERE user_id = ANY($1)
		ORDER BY earned_at, badge_id
	`, ids)
	if err != nil {
		return nil, storeErr("load badges", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID string
			b      user.Badge
		)
		if err := rows.Scan(&userID, &b.ID, &b.Name, &b.Description, &b.Icon, &b.Category, &b.EarnedAt); err != nil {
			return nil, storeErr("scan badge", err)
		}
		out[userID] = append(out[userID], b)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		u      user.User
		status string
	)
	err := row.Scan(
		&u.ID,
		&u.DisplayName,
		&u.Skills.Offered,
		&u.Skills.Wanted,
		&u.Reputation,
		&u.ReviewCount,
		&u.Level,
		&u.SessionsCompleted,
		&u.IsVerified,
		&status,
		&u.Availability.UpdatedAt,
		&u.Location,
		&u.CreditBalance,
		&u.LastActiveAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Availability.Status = user.AvailabilityStatus(status)
	return &u, nil
}

func skillKeys(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if k := shared.SkillKey(n); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilBadges(b []user.Badge) []user.Badge {
	if b == nil {
		return []user.Badge{}
	}
	return b
}
