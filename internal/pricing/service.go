package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrPricingNotFound means no record exists for the requested unit.
	// Callers must treat this as a configuration error and not charge.
	ErrPricingNotFound = errors.New("pricing: not found")

	ErrInvalidPricingReq = errors.New("pricing: invalid request")
)

// Repository abstracts pricing persistence. One record per unit; Upsert
// replaces the existing record for the unit when present.
type Repository interface {
	FindByUnit(ctx context.Context, unit Unit) (OveragePricing, bool, error)
	Upsert(ctx context.Context, p OveragePricing) error
}

// Service resolves overage prices.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// PerMinuteRate returns the USD price per overage minute.
// Fails closed: a missing pricing record is an error, never a zero price.
func (s *Service) PerMinuteRate(ctx context.Context) (decimal.Decimal, error) {
	if s.repo == nil {
		return decimal.Zero, errors.New("pricing: repository not configured")
	}
	p, ok, err := s.repo.FindByUnit(ctx, UnitPerMinute)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, ErrPricingNotFound
	}
	if p.AmountUSD.Sign() <= 0 {
		return decimal.Zero, ErrInvalidPricingReq
	}
	return p.AmountUSD, nil
}

// SetRate creates or replaces the price for a unit. Admin-only operation;
// a non-positive amount is rejected so charging can never resolve a zero
// or negative rate.
func (s *Service) SetRate(ctx context.Context, unit Unit, amountUSD decimal.Decimal) (OveragePricing, error) {
	if unit != UnitPerMinute && unit != UnitPerCall {
		return OveragePricing{}, ErrInvalidPricingReq
	}
	if amountUSD.Sign() <= 0 {
		return OveragePricing{}, ErrInvalidPricingReq
	}
	p := OveragePricing{
		ID:        uuid.NewString(),
		Unit:      unit,
		AmountUSD: amountUSD,
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return OveragePricing{}, err
	}
	return p, nil
}

// OverageChargeUSD computes the total USD charge for overage minutes.
func (s *Service) OverageChargeUSD(ctx context.Context, additionalMinutes decimal.Decimal) (decimal.Decimal, error) {
	if additionalMinutes.Sign() <= 0 {
		return decimal.Zero, ErrInvalidPricingReq
	}
	rate, err := s.PerMinuteRate(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return additionalMinutes.Mul(rate), nil
}

// BillableMinutes converts a duration in seconds to whole billable minutes,
// rounding any started minute up.
func BillableMinutes(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	m := seconds / 60
	if seconds%60 != 0 {
		m++
	}
	return m
}
