package mongodb

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-core/internal/domain/user"
)

// maxRatingAttempts bounds the compare-and-swap loop of ApplyRating.
const maxRatingAttempts = 8

// userDoc is the stored shape of a profile. offeredKeys, wantedKeys and
// locationKey hold lowercased copies for case-insensitive queries.
type userDoc struct {
	ID                string            `bson:"_id"`
	DisplayName       string            `bson:"displayName"`
	Skills            user.Skills       `bson:"skills"`
	OfferedKeys       []string          `bson:"offeredKeys"`
	WantedKeys        []string          `bson:"wantedKeys"`
	Reputation        float64           `bson:"reputation"`
	ReviewCount       int               `bson:"reviewCount"`
	Level             int               `bson:"level"`
	SessionsCompleted int               `bson:"sessionsCompleted"`
	IsVerified        bool              `bson:"isVerified"`
	Availability      user.Availability `bson:"availability"`
	Location          string            `bson:"location"`
	LocationKey       string            `bson:"locationKey"`
	Badges            []user.Badge      `bson:"badges"`
	CreditBalance     int               `bson:"creditBalance"`
	LastActiveAt      time.Time         `bson:"lastActiveAt"`
	CreatedAt         time.Time         `bson:"createdAt"`
	UpdatedAt         time.Time         `bson:"updatedAt"`
}

func toDoc(u *user.User) userDoc {
	badges := u.Badges
	if badges == nil {
		badges = []user.Badge{}
	}
	skills := user.Skills{Offered: nonNil(u.Skills.Offered), Wanted: nonNil(u.Skills.Wanted)}
	return userDoc{
		ID:                u.ID,
		DisplayName:       u.DisplayName,
		Skills:            skills,
		OfferedKeys:       skillKeys(skills.Offered),
		WantedKeys:        skillKeys(skills.Wanted),
		Reputation:        u.Reputation,
		ReviewCount:       u.ReviewCount,
		Level:             u.Level,
		SessionsCompleted: u.SessionsCompleted,
		IsVerified:        u.IsVerified,
		Availability:      u.Availability,
		Location:          u.Location,
		LocationKey:       locationKey(u.Location),
		Badges:            badges,
		CreditBalance:     u.CreditBalance,
		LastActiveAt:      u.LastActiveAt,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func (d *userDoc) toUser() *user.User {
	badges := d.Badges
	if badges == nil {
		badges = []user.Badge{}
	}
	return &user.User{
		ID:          d.ID,
		DisplayName: d.DisplayName,
		Skills: user.Skills{
			Offered: nonNil(d.Skills.Offered),
			Wanted:  nonNil(d.Skills.Wanted),
		},
		Reputation:        d.Reputation,
		ReviewCount:       d.ReviewCount,
		Level:             d.Level,
		SessionsCompleted: d.SessionsCompleted,
		IsVerified:        d.IsVerified,
		Availability: user.Availability{
			Status:    d.Availability.Status,
			UpdatedAt: d.Availability.UpdatedAt.UTC(),
		},
		Location:      d.Location,
		Badges:        badges,
		CreditBalance: d.CreditBalance,
		LastActiveAt:  d.LastActiveAt.UTC(),
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for MongoDB.
type UserRepository struct {
	conn    *Connection
	coll    *mongo.Collection
	settled *mongo.Collection
	now     func() time.Time
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	db := conn.Database()
	return &UserRepository{
		conn:    conn,
		coll:    db.Collection(CollectionUsers),
		settled: db.Collection(CollectionSettled),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new profile. The balance always starts at zero.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	doc := toDoc(u)
	doc.CreditBalance = 0
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if IsDuplicateKey(err) {
			return shared.ErrUserAlreadyExists
		}
		return storeErr("create user", err)
	}
	return nil
}

// GetByID returns a profile with badges and the cached balance.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if IsNoDocuments(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, storeErr("get user", err)
	}
	return doc.toUser(), nil
}

// Update overwrites the editable profile fields only.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	doc := toDoc(u)
	set := bson.M{
		"displayName":  doc.DisplayName,
		"skills":       doc.Skills,
		"offeredKeys":  doc.OfferedKeys,
		"wantedKeys":   doc.WantedKeys,
		"level":        doc.Level,
		"isVerified":   doc.IsVerified,
		"availability": doc.Availability,
		"location":     doc.Location,
		"locationKey":  doc.LocationKey,
		"lastActiveAt": doc.LastActiveAt,
		"updatedAt":    r.now(),
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": set})
	if err != nil {
		return storeErr("update user", err)
	}
	if res.MatchedCount == 0 {
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
	opts := options.Find().
		SetSort(bson.D{{Key: "lastActiveAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(f.EffectiveLimit()))

	cur, err := r.coll.Find(ctx, searchFilter(f), opts)
	if err != nil {
		return nil, storeErr("search users", err)
	}
	defer cur.Close(ctx)

	out := make([]*user.User, 0)
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storeErr("decode user", err)
		}
		out = append(out, doc.toUser())
	}
	if err := cur.Err(); err != nil {
		return nil, storeErr("search users", err)
	}
	return out, nil
}

func searchFilter(f user.Filter) bson.M {
	q := bson.M{}
	if f.Status != "" {
		q["availability.status"] = string(f.Status)
	}
	if f.MinReputation > 0 {
		q["reputation"] = bson.M{"$gte": f.MinReputation}
	}
	if k := shared.SkillKey(f.OffersSkill); k != "" {
		q["offeredKeys"] = k
	}
	if k := shared.SkillKey(f.WantsSkill); k != "" {
		q["wantedKeys"] = k
	}
	if k := locationKey(f.Location); k != "" {
		q["locationKey"] = k
	}
	if f.VerifiedOnly {
		q["isVerified"] = true
	}
	if len(f.ExcludeIDs) > 0 {
		q["_id"] = bson.M{"$nin": f.ExcludeIDs}
	}
	return q
}

// ─────────────────────────────────────────────────────────────────────────────
// Atomic Mutations
// ─────────────────────────────────────────────────────────────────────────────

// IncrementSessions bumps sessionsCompleted and returns the new value.
func (r *UserRepository) IncrementSessions(ctx context.Context, id string) (int, error) {
	var doc struct {
		SessionsCompleted int `bson:"sessionsCompleted"`
	}
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"sessionsCompleted": 1},
			"$set": bson.M{"updatedAt": r.now()},
		},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"sessionsCompleted": 1}),
	).Decode(&doc)
	if err != nil {
		if IsNoDocuments(err) {
			return 0, shared.ErrUserNotFound
		}
		return 0, storeErr("increment sessions", err)
	}
	return doc.SessionsCompleted, nil
}

// ApplyRating folds a rating into the reputation average. The update is
// conditioned on the values it was computed from and retried on a race.
func (r *UserRepository) ApplyRating(ctx context.Context, id string, rating float64) (float64, float64, error) {
	rt, err := shared.NewRating(rating)
	if err != nil {
		return 0, 0, err
	}

	for attempt := 0; attempt < maxRatingAttempts; attempt++ {
		var cur struct {
			Reputation  float64 `bson:"reputation"`
			ReviewCount int     `bson:"reviewCount"`
		}
		err := r.coll.FindOne(ctx, bson.M{"_id": id},
			options.FindOne().SetProjection(bson.M{"reputation": 1, "reviewCount": 1}),
		).Decode(&cur)
		if err != nil {
			if IsNoDocuments(err) {
				return 0, 0, shared.ErrUserNotFound
			}
			return 0, 0, storeErr("read reputation", err)
		}

		next := shared.RollingAverage(cur.Reputation, cur.ReviewCount, rt)
		res, err := r.coll.UpdateOne(ctx,
			bson.M{"_id": id, "reputation": cur.Reputation, "reviewCount": cur.ReviewCount},
			bson.M{
				"$set": bson.M{"reputation": next, "updatedAt": r.now()},
				"$inc": bson.M{"reviewCount": 1},
			},
		)
		if err != nil {
			return 0, 0, storeErr("apply rating", err)
		}
		if res.MatchedCount == 1 {
			return cur.Reputation, next, nil
		}
	}
	return 0, 0, shared.NewDomainError("mongodb", "ApplyRating", shared.ErrConflict, "reputation changed concurrently")
}

// settlementDoc marks a session as applied to its participants' profiles.
type settlementDoc struct {
	SessionID string    `bson:"_id"`
	TeacherID string    `bson:"teacherId"`
	LearnerID string    `bson:"learnerId"`
	Rating    float64   `bson:"rating"`
	SettledAt time.Time `bson:"settledAt"`
}

type participantDoc struct {
	SessionsCompleted int     `bson:"sessionsCompleted"`
	Reputation        float64 `bson:"reputation"`
	ReviewCount       int     `bson:"reviewCount"`
}

// SettleSession applies a session to both profiles inside one transaction.
// The settled_sessions document is the marker that makes a repeat a no-op.
func (r *UserRepository) SettleSession(ctx context.Context, in user.SessionSettlement) (*user.SettlementResult, error) {
	rt, err := shared.NewRating(in.Rating)
	if err != nil {
		return nil, err
	}

	out, err := r.conn.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		teacher, err := r.participant(sc, in.TeacherID)
		if err != nil {
			return nil, err
		}
		learner, err := r.participant(sc, in.LearnerID)
		if err != nil {
			return nil, err
		}

		res := &user.SettlementResult{
			TeacherSessions: teacher.SessionsCompleted,
			LearnerSessions: learner.SessionsCompleted,
			OldReputation:   teacher.Reputation,
			NewReputation:   teacher.Reputation,
		}

		n, err := r.settled.CountDocuments(sc, bson.M{"_id": in.SessionID}, options.Count().SetLimit(1))
		if err != nil {
			return nil, storeErr("check settlement", err)
		}
		if n > 0 {
			return res, nil
		}

		now := r.now()
		if _, err := r.settled.InsertOne(sc, settlementDoc{
			SessionID: in.SessionID,
			TeacherID: in.TeacherID,
			LearnerID: in.LearnerID,
			Rating:    float64(rt),
			SettledAt: now,
		}); err != nil {
			return nil, storeErr("record settlement", err)
		}

		res.NewReputation = shared.RollingAverage(teacher.Reputation, teacher.ReviewCount, rt)
		if _, err := r.coll.UpdateOne(sc, bson.M{"_id": in.TeacherID}, bson.M{
			"$inc": bson.M{"sessionsCompleted": 1, "reviewCount": 1},
			"$set": bson.M{"reputation": res.NewReputation, "updatedAt": now},
		}); err != nil {
			return nil, storeErr("settle teacher", err)
		}
		if _, err := r.coll.UpdateOne(sc, bson.M{"_id": in.LearnerID}, bson.M{
			"$inc": bson.M{"sessionsCompleted": 1},
			"$set": bson.M{"updatedAt": now},
		}); err != nil {
			return nil, storeErr("settle learner", err)
		}

		res.Applied = true
		res.TeacherSessions++
		res.LearnerSessions++
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*user.SettlementResult), nil
}

func (r *UserRepository) participant(ctx context.Context, id string) (*participantDoc, error) {
	var doc participantDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"sessionsCompleted": 1, "reputation": 1, "reviewCount": 1}),
	).Decode(&doc)
	if err != nil {
		if IsNoDocuments(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, storeErr("read participant", err)
	}
	return &doc, nil
}

// AppendBadge pushes the badge unless a badge with the same ID is present.
func (r *UserRepository) AppendBadge(ctx context.Context, id string, b user.Badge) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "badges.id": bson.M{"$ne": b.ID}},
		bson.M{"$push": bson.M{"badges": b}},
	)
	if err != nil {
		return false, storeErr("append badge", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, storeErr("check user", err)
	}
	if n == 0 {
		return false, shared.ErrUserNotFound
	}
	return false, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func skillKeys(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if k := shared.SkillKey(s); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func locationKey(loc string) string {
	return strings.ToLower(strings.TrimSpace(loc))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
