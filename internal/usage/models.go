package usage

import (
	"time"

	"github.com/shopspring/decimal"

	"ivr-billing/internal/callprovider"
	"ivr-billing/internal/subscription"
)

// CallDurationRecord tracks one call's consumption against its owner's
// subscription minute pools.
//
// Invariant: Charged == true implies AdditionalMinutes > 0 was computed at
// least once and a ledger debit with matching amount was issued exactly
// once. A record is never re-charged after Charged becomes true; the flag is
// flipped only through Repo.ClaimCharge.
//
// Lifecycle: created/updated on every poll or webhook observation of a call;
// terminal once the status is complete or terminated and, when overage
// exists, charged.
type CallDurationRecord struct {
	CallID    string `json:"call_id" db:"call_id"`
	PathwayID string `json:"pathway_id" db:"pathway_id"`
	UserID    string `json:"user_id" db:"user_id"`

	Status callprovider.Status `json:"status" db:"status"`

	// Pool is the subscription minute pool this call draws from
	// (batch campaign calls vs single test calls).
	Pool subscription.Pool `json:"pool" db:"pool"`

	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// AdditionalMinutes is the computed overage beyond the pool, >= 0.
	AdditionalMinutes decimal.Decimal `json:"additional_minutes" db:"additional_minutes"`

	Charged bool `json:"charged" db:"charged"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Settled reports whether no further usage accounting is expected:
// the call reached a terminal provider state.
func (r CallDurationRecord) Settled() bool {
	return r.Status.Terminal()
}

// NeedsCharge reports whether the record carries unbilled overage.
func (r CallDurationRecord) NeedsCharge() bool {
	return !r.Charged && r.AdditionalMinutes.Sign() > 0
}
