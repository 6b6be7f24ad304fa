package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ivr-billing/pkg/utils"
)

// PostgresRepo persists subscription records.
//
// Assumed table:
//   subscriptions(id, user_id, plan_id, status, remaining_batch_minutes,
//                 remaining_single_minutes, remaining_transfer_minutes,
//                 started_at, expires_at, auto_renew, created_at, updated_at)
//   Partial unique index on (user_id) WHERE status = 'active'
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const recordColumns = `
id, user_id, plan_id, status, remaining_batch_minutes, remaining_single_minutes,
remaining_transfer_minutes, started_at, expires_at, auto_renew, created_at, updated_at
`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var r Record
	err := row.Scan(
		&r.ID, &r.UserID, &r.PlanID, &r.Status,
		&r.RemainingBatchMinutes, &r.RemainingSingleMinutes, &r.RemainingTransferMinutes,
		&r.StartedAt, &r.ExpiresAt, &r.AutoRenew, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (p *PostgresRepo) GetActiveByUser(ctx context.Context, userID string) (Record, error) {
	q := `SELECT ` + recordColumns + ` FROM subscriptions WHERE user_id = $1 AND status = 'active'`
	r, err := scanRecord(p.db.QueryRowContext(ctx, q, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return r, nil
}

// Supersede flips the superseded record inactive and inserts the replacement
// in one transaction. A failure between the two writes rolls both back, so
// the user is never left without any record.
func (p *PostgresRepo) Supersede(ctx context.Context, prevID string, r Record) error {
	const flipQ = `UPDATE subscriptions SET status = $2, updated_at = $3 WHERE id = $1`
	const insertQ = `
INSERT INTO subscriptions (
  id, user_id, plan_id, status, remaining_batch_minutes, remaining_single_minutes,
  remaining_transfer_minutes, started_at, expires_at, auto_renew, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
	return utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if prevID != "" {
			res, err := tx.ExecContext(ctx, flipQ, prevID, StatusInactive, r.CreatedAt)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
		}
		_, err := tx.ExecContext(ctx, insertQ,
			r.ID, r.UserID, r.PlanID, r.Status,
			r.RemainingBatchMinutes, r.RemainingSingleMinutes, r.RemainingTransferMinutes,
			r.StartedAt, r.ExpiresAt, r.AutoRenew, r.CreatedAt, r.UpdatedAt,
		)
		return err
	})
}

func (p *PostgresRepo) SetStatus(ctx context.Context, id string, status Status, now time.Time) error {
	const q = `UPDATE subscriptions SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := p.db.ExecContext(ctx, q, id, status, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func poolColumn(pool Pool) (string, error) {
	switch pool {
	case PoolBatch:
		return "remaining_batch_minutes", nil
	case PoolSingle:
		return "remaining_single_minutes", nil
	case PoolTransfer:
		return "remaining_transfer_minutes", nil
	default:
		return "", fmt.Errorf("subscription: unknown pool %q", pool)
	}
}

// DecrementPool floors the pool at zero in a single statement and returns
// the pre-decrement value. The row lock taken by UPDATE serializes
// concurrent consumers of the same record.
func (p *PostgresRepo) DecrementPool(ctx context.Context, id string, pool Pool, minutes int, now time.Time) (int, error) {
	col, err := poolColumn(pool)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`
WITH prev AS (
  SELECT %[1]s AS v FROM subscriptions WHERE id = $1 FOR UPDATE
)
UPDATE subscriptions s
SET %[1]s = GREATEST(s.%[1]s - $2, 0), updated_at = $3
FROM prev
WHERE s.id = $1
RETURNING prev.v
`, col)

	var previous int
	if err := p.db.QueryRowContext(ctx, q, id, minutes, now).Scan(&previous); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return previous, nil
}

func (p *PostgresRepo) ListExpiredActive(ctx context.Context, now time.Time) ([]Record, error) {
	q := `SELECT ` + recordColumns + ` FROM subscriptions WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < $1`
	rows, err := p.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PostgresPlanRepo resolves plan definitions.
//
// Assumed table:
//   plans(id, name, batch_minutes, single_minutes, transfer_minutes,
//         price_usd, duration_days)
type PostgresPlanRepo struct {
	db *sql.DB
}

func NewPostgresPlanRepo(db *sql.DB) *PostgresPlanRepo { return &PostgresPlanRepo{db: db} }

func (p *PostgresPlanRepo) Get(ctx context.Context, planID string) (Plan, error) {
	const q = `
SELECT id, name, batch_minutes, single_minutes, transfer_minutes, price_usd, duration_days
FROM plans
WHERE id = $1
`
	var plan Plan
	var durationDays int
	err := p.db.QueryRowContext(ctx, q, planID).Scan(
		&plan.ID, &plan.Name, &plan.BatchMinutes, &plan.SingleMinutes,
		&plan.TransferMinutes, &plan.PriceUSD, &durationDays,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Plan{}, ErrNotFound
		}
		return Plan{}, err
	}
	plan.Duration = time.Duration(durationDays) * 24 * time.Hour
	return plan, nil
}
