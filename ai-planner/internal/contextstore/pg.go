package contextstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

// Schema creates the plan_records table. BIGSERIAL keys come from a sequence,
// so deleted keys are never handed out again.
const Schema = `
CREATE TABLE IF NOT EXISTS plan_records (
	key BIGSERIAL PRIMARY KEY,
	resource_type TEXT NOT NULL,
	status TEXT NOT NULL,
	provider TEXT NOT NULL,
	region TEXT NOT NULL DEFAULT '',
	compliance TEXT[] NOT NULL DEFAULT '{}',
	total_cost DOUBLE PRECISION NOT NULL,
	record JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS plan_records_created_at_idx ON plan_records (created_at);
`

// PGStore persists plan records into Postgres.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Migrate applies Schema.
func (p *PGStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate plan_records: %w", err)
	}
	return nil
}

func (p *PGStore) Store(ctx context.Context, rec models.PlanRecord) (models.ContextKey, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("marshal plan record: %w", err)
	}
	compliance := rec.Request.Compliance
	if compliance == nil {
		compliance = []string{}
	}

	q := `
		INSERT INTO plan_records (resource_type, status, provider, region, compliance, total_cost, record, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING key
	`
	var key int64
	err = p.db.QueryRowContext(ctx, q,
		string(rec.Request.ResourceType),
		string(rec.Decision.Status),
		rec.Provider.Provider,
		rec.Request.Region,
		pq.Array(compliance),
		rec.Cost.Total,
		payload,
		rec.CreatedAt,
	).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("insert plan record: %w", err)
	}
	return models.ContextKey(key), nil
}

func (p *PGStore) Retrieve(ctx context.Context, key models.ContextKey) (models.PlanRecord, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT record FROM plan_records WHERE key = $1`, int64(key)).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PlanRecord{}, ErrNotFound
		}
		return models.PlanRecord{}, fmt.Errorf("select plan record: %w", err)
	}
	var rec models.PlanRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return models.PlanRecord{}, fmt.Errorf("decode plan record: %w", err)
	}
	return rec, nil
}

func (p *PGStore) Recent(ctx context.Context, limit int) ([]models.StoredPlan, error) {
	if limit <= 0 {
		return []models.StoredPlan{}, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT key, record FROM plan_records ORDER BY key DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list plan records: %w", err)
	}
	defer rows.Close()

	out := make([]models.StoredPlan, 0, limit)
	for rows.Next() {
		var (
			key     int64
			payload []byte
		)
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, err
		}
		var rec models.PlanRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode plan %d: %w", key, err)
		}
		out = append(out, models.StoredPlan{Key: models.ContextKey(key), Record: rec})
	}
	return out, rows.Err()
}

func (p *PGStore) Purge(ctx context.Context, policy RetentionPolicy) (int, error) {
	if !policy.Enabled() {
		return 0, nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	if cutoff, ok := policy.cutoff(); ok {
		res, err := tx.ExecContext(ctx, `DELETE FROM plan_records WHERE created_at < $1`, cutoff)
		if err != nil {
			return 0, fmt.Errorf("purge by age: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if policy.MaxRecords > 0 {
		q := `
			DELETE FROM plan_records
			WHERE key NOT IN (SELECT key FROM plan_records ORDER BY key DESC LIMIT $1)
		`
		res, err := tx.ExecContext(ctx, q, policy.MaxRecords)
		if err != nil {
			return 0, fmt.Errorf("purge by count: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return int(removed), nil
}
