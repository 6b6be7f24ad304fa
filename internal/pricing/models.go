package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// OveragePricing is the price-per-unit table for usage beyond a
// subscription's minute pools.
//
// Invariant: singleton-per-unit lookup. Charging fails closed (no charge
// attempted) when no record exists for the required unit.
type OveragePricing struct {
	ID string `json:"id" db:"id"`

	Unit Unit `json:"unit" db:"unit"`

	// AmountUSD is the price per unit, in USD.
	AmountUSD decimal.Decimal `json:"amount_usd" db:"amount_usd"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Unit string

const (
	UnitPerMinute Unit = "per_minute"
	UnitPerCall   Unit = "per_call"
)
