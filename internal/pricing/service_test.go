package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPerMinuteRate_FailsClosedWithoutRecord(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.PerMinuteRate(context.Background()); !errors.Is(err, ErrPricingNotFound) {
		t.Fatalf("expected ErrPricingNotFound, got %v", err)
	}
}

func TestPerMinuteRate_RejectsNonPositivePrice(t *testing.T) {
	svc := NewService(NewMemoryRepo(OveragePricing{
		ID:        "p1",
		Unit:      UnitPerMinute,
		AmountUSD: decimal.Zero,
	}))
	if _, err := svc.PerMinuteRate(context.Background()); !errors.Is(err, ErrInvalidPricingReq) {
		t.Fatalf("expected ErrInvalidPricingReq, got %v", err)
	}
}

func TestOverageChargeUSD(t *testing.T) {
	svc := NewService(NewMemoryRepo(OveragePricing{
		ID:        "p1",
		Unit:      UnitPerMinute,
		AmountUSD: decimal.NewFromFloat(0.25),
	}))

	got, err := svc.OverageChargeUSD(context.Background(), decimal.NewFromInt(5))
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if !got.Equal(decimal.NewFromFloat(1.25)) {
		t.Fatalf("expected 1.25, got %s", got)
	}

	if _, err := svc.OverageChargeUSD(context.Background(), decimal.Zero); !errors.Is(err, ErrInvalidPricingReq) {
		t.Fatalf("expected ErrInvalidPricingReq for zero minutes, got %v", err)
	}
}

func TestSetRate_ReplacesExistingUnitPrice(t *testing.T) {
	repo := NewMemoryRepo(OveragePricing{
		ID:        "p1",
		Unit:      UnitPerMinute,
		AmountUSD: decimal.NewFromFloat(0.25),
	})
	svc := NewService(repo)

	if _, err := svc.SetRate(context.Background(), UnitPerMinute, decimal.NewFromFloat(0.75)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	rate, err := svc.PerMinuteRate(context.Background())
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if !rate.Equal(decimal.NewFromFloat(0.75)) {
		t.Fatalf("expected replaced rate 0.75, got %s", rate)
	}
}

func TestSetRate_RejectsBadInput(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.SetRate(context.Background(), Unit("per_fortnight"), decimal.NewFromInt(1)); !errors.Is(err, ErrInvalidPricingReq) {
		t.Fatalf("expected ErrInvalidPricingReq for unknown unit, got %v", err)
	}
	if _, err := svc.SetRate(context.Background(), UnitPerMinute, decimal.Zero); !errors.Is(err, ErrInvalidPricingReq) {
		t.Fatalf("expected ErrInvalidPricingReq for zero amount, got %v", err)
	}
}

func TestBillableMinutes_RoundsUp(t *testing.T) {
	cases := []struct {
		seconds int
		want    int
	}{
		{0, 0},
		{-10, 0},
		{1, 1},
		{59, 1},
		{60, 1},
		{61, 2},
		{900, 15},
		{901, 16},
	}
	for _, c := range cases {
		if got := BillableMinutes(c.seconds); got != c.want {
			t.Fatalf("BillableMinutes(%d) = %d, want %d", c.seconds, got, c.want)
		}
	}
}
