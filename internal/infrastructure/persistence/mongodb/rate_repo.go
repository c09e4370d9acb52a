package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
)

// rateDoc is keyed by the lowercased skill name.
type rateDoc struct {
	Key                  string    `bson:"_id"`
	SkillName            string    `bson:"skillName"`
	Category             string    `bson:"category"`
	BaseRate             int       `bson:"baseRate"`
	DemandMultiplier     float64   `bson:"demandMultiplier"`
	DifficultyMultiplier float64   `bson:"difficultyMultiplier"`
	LastUpdated          time.Time `bson:"lastUpdated"`
}

// RateRepository implements rate.Repository for MongoDB.
type RateRepository struct {
	conn *Connection
	coll *mongo.Collection
}

// NewRateRepository creates a new RateRepository.
func NewRateRepository(conn *Connection) *RateRepository {
	return &RateRepository{conn: conn, coll: conn.Database().Collection(CollectionRates)}
}

// UpsertBatch validates the whole batch, then replaces every record in one
// transaction.
func (r *RateRepository) UpsertBatch(ctx context.Context, rates []rate.SkillEarningRate) (int, error) {
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(rates))
	for _, rt := range rates {
		rt = rt.Normalize()
		if err := rt.Validate(); err != nil {
			return 0, err
		}
		doc := rateDoc{
			Key:                  rt.Key(),
			SkillName:            rt.SkillName,
			Category:             string(rt.Category),
			BaseRate:             rt.BaseRate,
			DemandMultiplier:     rt.DemandMultiplier,
			DifficultyMultiplier: rt.DifficultyMultiplier,
			LastUpdated:          now,
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.Key}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return 0, nil
	}

	_, err := r.conn.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := r.coll.BulkWrite(sc, models, options.BulkWrite().SetOrdered(true)); err != nil {
			return nil, storeErr("upsert earning rates", err)
		}
		return nil, nil
	})
	if err != nil {
		return 0, err
	}
	return len(models), nil
}

// List returns all rates ordered by skill key.
func (r *RateRepository) List(ctx context.Context) ([]rate.SkillEarningRate, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, storeErr("list earning rates", err)
	}
	defer cur.Close(ctx)

	out := make([]rate.SkillEarningRate, 0)
	for cur.Next(ctx) {
		var doc rateDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storeErr("decode earning rate", err)
		}
		out = append(out, rate.SkillEarningRate{
			SkillName:            doc.SkillName,
			Category:             rate.Category(doc.Category),
			BaseRate:             doc.BaseRate,
			DemandMultiplier:     doc.DemandMultiplier,
			DifficultyMultiplier: doc.DifficultyMultiplier,
			LastUpdated:          doc.LastUpdated.UTC(),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, storeErr("list earning rates", err)
	}
	return out, nil
}
