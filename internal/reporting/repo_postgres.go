package reporting

import (
	"context"
	"database/sql"
	"time"

	"ivr-billing/internal/usage"
)

// PostgresRepo reads call duration records for aggregation. Reporting never
// writes.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (p *PostgresRepo) ListRecords(ctx context.Context, userID string, from, to time.Time) ([]usage.CallDurationRecord, error) {
	const q = `
SELECT call_id, pathway_id, user_id, status, pool, started_at, ended_at,
       duration_seconds, additional_minutes, charged, created_at, updated_at
FROM call_duration_records
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at
`
	rows, err := p.db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []usage.CallDurationRecord
	for rows.Next() {
		var r usage.CallDurationRecord
		if err := rows.Scan(
			&r.CallID, &r.PathwayID, &r.UserID, &r.Status, &r.Pool,
			&r.StartedAt, &r.EndedAt, &r.DurationSeconds,
			&r.AdditionalMinutes, &r.Charged, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
