package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// UsageSummaryRequest requests aggregated call usage for one user.
type UsageSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type UsageSummary struct {
	UserID string `json:"user_id"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	TerminatedCalls int `json:"terminated_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// Overage accounting across the range.
	OverageMinutes  decimal.Decimal `json:"overage_minutes"`
	ChargedCalls    int             `json:"charged_calls"`
	UnchargedCalls  int             `json:"uncharged_calls"`
	OverageUSD      decimal.Decimal `json:"overage_usd"`
	PricingResolved bool            `json:"pricing_resolved"`
}
