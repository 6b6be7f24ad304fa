package pricing

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo persists the overage pricing table.
//
// Assumed table:
//   overage_pricing(id, unit, amount_usd, created_at, updated_at)
//   UNIQUE (unit)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) FindByUnit(ctx context.Context, unit Unit) (OveragePricing, bool, error) {
	const q = `
SELECT id, unit, amount_usd, created_at, updated_at
FROM overage_pricing
WHERE unit = $1
`
	var p OveragePricing
	err := r.db.QueryRowContext(ctx, q, unit).Scan(&p.ID, &p.Unit, &p.AmountUSD, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OveragePricing{}, false, nil
		}
		return OveragePricing{}, false, err
	}
	return p, true, nil
}

func (r *PostgresRepo) Upsert(ctx context.Context, p OveragePricing) error {
	const q = `
INSERT INTO overage_pricing (id, unit, amount_usd, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (unit) DO UPDATE SET amount_usd = EXCLUDED.amount_usd, updated_at = now()
`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.Unit, p.AmountUSD)
	return err
}
