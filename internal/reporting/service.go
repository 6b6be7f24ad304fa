package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ivr-billing/internal/callprovider"
	"ivr-billing/internal/pricing"
	"ivr-billing/internal/usage"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. Implementations should
// query the immutable call duration records, never derived state.
type Repository interface {
	ListRecords(ctx context.Context, userID string, from, to time.Time) ([]usage.CallDurationRecord, error)
}

type Service struct {
	repo    Repository
	pricing *pricing.Service
}

func NewService(repo Repository, pricingSvc *pricing.Service) *Service {
	return &Service{repo: repo, pricing: pricingSvc}
}

// UsageSummary aggregates one user's call records over a range. Overage USD
// is priced at the current per-minute rate; when no pricing row exists the
// summary still returns minute totals with PricingResolved false.
func (s *Service) UsageSummary(ctx context.Context, req UsageSummaryRequest) (UsageSummary, error) {
	if req.UserID == "" {
		return UsageSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return UsageSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return UsageSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListRecords(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return UsageSummary{}, err
	}

	out := UsageSummary{
		UserID:         req.UserID,
		OverageMinutes: decimal.Zero,
		OverageUSD:     decimal.Zero,
	}
	for _, r := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += r.DurationSeconds
		switch r.Status {
		case callprovider.StatusComplete:
			out.CompletedCalls++
		case callprovider.StatusTerminated:
			out.TerminatedCalls++
		default:
			out.InProgressCalls++
		}
		if r.AdditionalMinutes.Sign() > 0 {
			out.OverageMinutes = out.OverageMinutes.Add(r.AdditionalMinutes)
			if r.Charged {
				out.ChargedCalls++
			} else {
				out.UnchargedCalls++
			}
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}

	if s.pricing != nil && out.OverageMinutes.Sign() > 0 {
		usd, err := s.pricing.OverageChargeUSD(ctx, out.OverageMinutes)
		switch {
		case err == nil:
			out.OverageUSD = usd
			out.PricingResolved = true
		case errors.Is(err, pricing.ErrPricingNotFound):
			// Minutes are still reported; the USD column stays zero.
		default:
			return UsageSummary{}, err
		}
	}
	return out, nil
}
