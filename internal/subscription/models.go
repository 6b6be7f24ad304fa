package subscription

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one plan assignment for a user.
//
// Lifecycle: active -> inactive (expiry observed at any check, or an
// unrecoverable charge failure). Re-subscription never reuses a record;
// a new one supersedes it. Records are never hard-deleted.
//
// Invariant: remaining minute pools never go negative. When an observation
// would drive a pool below zero, the pool is floored at zero and the deficit
// is routed to overage charging instead.
type Record struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	PlanID string `json:"plan_id" db:"plan_id"`

	Status Status `json:"status" db:"status"`

	RemainingBatchMinutes    int `json:"remaining_batch_minutes" db:"remaining_batch_minutes"`
	RemainingSingleMinutes   int `json:"remaining_single_minutes" db:"remaining_single_minutes"`
	RemainingTransferMinutes int `json:"remaining_transfer_minutes" db:"remaining_transfer_minutes"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	AutoRenew bool       `json:"auto_renew" db:"auto_renew"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Expired reports whether the record's expiry date has passed at t.
// Records without an expiry date never expire (free plans).
func (r Record) Expired(t time.Time) bool {
	return r.ExpiresAt != nil && t.After(*r.ExpiresAt)
}

// Pool selects one of the minute pools on a Record.
type Pool string

const (
	PoolBatch    Pool = "batch"
	PoolSingle   Pool = "single"
	PoolTransfer Pool = "transfer"
)

// Plan defines the minute pools granted on activation.
type Plan struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	BatchMinutes    int `json:"batch_minutes" db:"batch_minutes"`
	SingleMinutes   int `json:"single_minutes" db:"single_minutes"`
	TransferMinutes int `json:"transfer_minutes" db:"transfer_minutes"`

	// PriceUSD is zero for free plans.
	PriceUSD decimal.Decimal `json:"price_usd" db:"price_usd"`

	// Duration is how long an activation lasts; zero means no expiry.
	Duration time.Duration `json:"duration" db:"duration"`
}
