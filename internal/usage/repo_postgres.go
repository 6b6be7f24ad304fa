package usage

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo persists call duration records.
//
// Assumed table:
//   call_duration_records(call_id, pathway_id, user_id, status, pool,
//                         started_at, ended_at, duration_seconds,
//                         additional_minutes, charged, created_at, updated_at)
//   PRIMARY KEY (call_id), UNIQUE (call_id, pathway_id)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const recordColumns = `
call_id, pathway_id, user_id, status, pool, started_at, ended_at,
duration_seconds, additional_minutes, charged, created_at, updated_at
`

func scanRecord(row interface{ Scan(...any) error }) (CallDurationRecord, error) {
	var r CallDurationRecord
	err := row.Scan(
		&r.CallID, &r.PathwayID, &r.UserID, &r.Status, &r.Pool,
		&r.StartedAt, &r.EndedAt, &r.DurationSeconds,
		&r.AdditionalMinutes, &r.Charged, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (p *PostgresRepo) Upsert(ctx context.Context, r CallDurationRecord) error {
	// charged is set on insert only; updates never touch it.
	const q = `
INSERT INTO call_duration_records (
  call_id, pathway_id, user_id, status, pool, started_at, ended_at,
  duration_seconds, additional_minutes, charged, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (call_id, pathway_id)
DO UPDATE SET status = EXCLUDED.status,
              started_at = EXCLUDED.started_at,
              ended_at = EXCLUDED.ended_at,
              duration_seconds = EXCLUDED.duration_seconds,
              additional_minutes = EXCLUDED.additional_minutes,
              updated_at = EXCLUDED.updated_at
`
	_, err := p.db.ExecContext(ctx, q,
		r.CallID, r.PathwayID, r.UserID, r.Status, r.Pool, r.StartedAt, r.EndedAt,
		r.DurationSeconds, r.AdditionalMinutes, r.Charged, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (p *PostgresRepo) Get(ctx context.Context, callID, pathwayID string) (CallDurationRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM call_duration_records WHERE call_id = $1 AND pathway_id = $2`
	r, err := scanRecord(p.db.QueryRowContext(ctx, q, callID, pathwayID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallDurationRecord{}, ErrNotFound
		}
		return CallDurationRecord{}, err
	}
	return r, nil
}

func (p *PostgresRepo) GetByCallID(ctx context.Context, callID string) (CallDurationRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM call_duration_records WHERE call_id = $1`
	r, err := scanRecord(p.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallDurationRecord{}, ErrNotFound
		}
		return CallDurationRecord{}, err
	}
	return r, nil
}

func (p *PostgresRepo) ListActive(ctx context.Context) ([]CallDurationRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM call_duration_records WHERE status NOT IN ('complete', 'terminated') ORDER BY created_at`
	return p.list(ctx, q)
}

func (p *PostgresRepo) ListUncharged(ctx context.Context) ([]CallDurationRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM call_duration_records WHERE charged = FALSE AND additional_minutes > 0 ORDER BY created_at`
	return p.list(ctx, q)
}

func (p *PostgresRepo) list(ctx context.Context, q string) ([]CallDurationRecord, error) {
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallDurationRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClaimCharge is the row-level idempotency gate: the conditional UPDATE
// succeeds for exactly one writer regardless of how many triggers race.
func (p *PostgresRepo) ClaimCharge(ctx context.Context, callID string) (bool, error) {
	const q = `
UPDATE call_duration_records
SET charged = TRUE, updated_at = NOW()
WHERE call_id = $1 AND charged = FALSE
`
	res, err := p.db.ExecContext(ctx, q, callID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
