package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
)

// RateRepository implements rate.Repository for PostgreSQL.
type RateRepository struct {
	conn *Connection
}

// NewRateRepository creates a new RateRepository.
func NewRateRepository(conn *Connection) *RateRepository {
	return &RateRepository{conn: conn}
}

// UpsertBatch validates the whole batch, then upserts it in one transaction.
func (r *RateRepository) UpsertBatch(ctx context.Context, rates []rate.SkillEarningRate) (int, error) {
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, rt := range rates {
		rt = rt.Normalize()
		if err := rt.Validate(); err != nil {
			return 0, err
		}
		batch.Queue(`
			INSERT INTO skill_earning_rates (
				skill_key, skill_name, category, base_rate,
				demand_multiplier, difficulty_multiplier, last_updated
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (skill_key) DO UPDATE SET
				skill_name = EXCLUDED.skill_name,
				category = EXCLUDED.category,
				base_rate = EXCLUDED.base_rate,
				demand_multiplier = EXCLUDED.demand_multiplier,
				difficulty_multiplier = EXCLUDED.difficulty_multiplier,
				last_updated = EXCLUDED.last_updated
		`, rt.Key(), rt.SkillName, string(rt.Category), rt.BaseRate,
			rt.DemandMultiplier, rt.DifficultyMultiplier, now)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return storeErr("upsert earning rate", err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return batch.Len(), nil
}

// List returns all rates ordered by skill key.
func (r *RateRepository) List(ctx context.Context) ([]rate.SkillEarningRate, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT skill_name, category, base_rate, demand_multiplier, difficulty_multiplier, last_updated
		FROM skill_earning_rates
		ORDER BY skill_key
	`)
	if err != nil {
		return nil, storeErr("list earning rates", err)
	}
	defer rows.Close()

	out := make([]rate.SkillEarningRate, 0)
	for rows.Next() {
		var (
			rt       rate.SkillEarningRate
			category string
		)
		if err := rows.Scan(&rt.SkillName, &category, &rt.BaseRate,
			&rt.DemandMultiplier, &rt.DifficultyMultiplier, &rt.LastUpdated); err != nil {
			return nil, storeErr("scan earning rate", err)
		}
		rt.Category = rate.Category(category)
		out = append(out, rt)
	}
	return out, rows.Err()
}
