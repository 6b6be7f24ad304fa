package subscription

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testPlan() Plan {
	return Plan{
		ID:              "plan-basic",
		Name:            "Basic",
		BatchMinutes:    100,
		SingleMinutes:   10,
		TransferMinutes: 20,
		Duration:        30 * 24 * time.Hour,
	}
}

func newTestService(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	svc := NewService(repo, NewMemoryPlanRepo(testPlan()))
	svc.SetClock(func() time.Time { return time.Unix(1700000000, 0).UTC() })
	return svc, repo
}

func TestActivate_GrantsPlanPools(t *testing.T) {
	svc, _ := newTestService(t)

	rec, err := svc.Activate(context.Background(), "user-1", "plan-basic")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if rec.Status != StatusActive {
		t.Fatalf("expected active, got %s", rec.Status)
	}
	if rec.RemainingBatchMinutes != 100 || rec.RemainingSingleMinutes != 10 || rec.RemainingTransferMinutes != 20 {
		t.Fatalf("unexpected pools: %+v", rec)
	}
	if rec.ExpiresAt == nil {
		t.Fatalf("expected expiry for plan with duration")
	}
}

func TestActivate_SupersedesPriorActiveRecord(t *testing.T) {
	svc, repo := newTestService(t)

	first, err := svc.Activate(context.Background(), "user-1", "plan-basic")
	if err != nil {
		t.Fatalf("first activate: %v", err)
	}
	second, err := svc.Activate(context.Background(), "user-1", "plan-basic")
	if err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected a fresh record on re-subscription")
	}

	old, ok := repo.Get(first.ID)
	if !ok {
		t.Fatalf("superseded record must not be deleted")
	}
	if old.Status != StatusInactive {
		t.Fatalf("expected superseded record inactive, got %s", old.Status)
	}

	active, err := svc.RequireActive(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("require active: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("expected new record active")
	}
}

type failingSupersedeRepo struct {
	*MemoryRepo
	fail bool
}

func (f *failingSupersedeRepo) Supersede(ctx context.Context, prevID string, r Record) error {
	if f.fail {
		return errors.New("storage offline")
	}
	return f.MemoryRepo.Supersede(ctx, prevID, r)
}

// A storage failure during re-subscription must leave the prior record
// active: the flip and the insert land together or not at all.
func TestActivate_FailedSupersedeKeepsPriorActive(t *testing.T) {
	repo := &failingSupersedeRepo{MemoryRepo: NewMemoryRepo()}
	svc := NewService(repo, NewMemoryPlanRepo(testPlan()))
	svc.SetClock(func() time.Time { return time.Unix(1700000000, 0).UTC() })

	first, err := svc.Activate(context.Background(), "user-1", "plan-basic")
	if err != nil {
		t.Fatalf("first activate: %v", err)
	}

	repo.fail = true
	if _, err := svc.Activate(context.Background(), "user-1", "plan-basic"); err == nil {
		t.Fatalf("expected activation failure")
	}

	active, err := svc.RequireActive(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("require active after failed re-subscription: %v", err)
	}
	if active.ID != first.ID {
		t.Fatalf("prior record must stay active, got %s", active.ID)
	}
}

func TestActivate_UnknownPlan(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Activate(context.Background(), "user-1", "no-such-plan"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequireActive_FlipsExpiredRecordLazily(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, NewMemoryPlanRepo(testPlan()))

	base := time.Unix(1700000000, 0).UTC()
	svc.SetClock(func() time.Time { return base })

	rec, err := svc.Activate(context.Background(), "user-1", "plan-basic")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	// Past expiry: the guard itself flips the record before refusing.
	svc.SetClock(func() time.Time { return base.Add(31 * 24 * time.Hour) })
	if _, err := svc.RequireActive(context.Background(), "user-1"); !errors.Is(err, ErrNoActiveSubscription) {
		t.Fatalf("expected ErrNoActiveSubscription, got %v", err)
	}

	stored, ok := repo.Get(rec.ID)
	if !ok || stored.Status != StatusInactive {
		t.Fatalf("expected lazy flip to inactive, got %+v", stored)
	}
}

func TestConsumeMinutes_WithinPool(t *testing.T) {
	svc, repo := newTestService(t)
	rec, _ := svc.Activate(context.Background(), "user-1", "plan-basic")

	overage, err := svc.ConsumeMinutes(context.Background(), "user-1", PoolSingle, 4)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if overage != 0 {
		t.Fatalf("expected no overage, got %d", overage)
	}
	stored, _ := repo.Get(rec.ID)
	if stored.RemainingSingleMinutes != 6 {
		t.Fatalf("expected 6 remaining, got %d", stored.RemainingSingleMinutes)
	}
}

func TestConsumeMinutes_PoolNeverNegative(t *testing.T) {
	svc, repo := newTestService(t)
	rec, _ := svc.Activate(context.Background(), "user-1", "plan-basic")

	// 15 minutes against a pool of 10: pool zeroes, 5 overage.
	overage, err := svc.ConsumeMinutes(context.Background(), "user-1", PoolSingle, 15)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if overage != 5 {
		t.Fatalf("expected 5 overage minutes, got %d", overage)
	}
	stored, _ := repo.Get(rec.ID)
	if stored.RemainingSingleMinutes != 0 {
		t.Fatalf("pool must floor at zero, got %d", stored.RemainingSingleMinutes)
	}

	// Everything after exhaustion is overage.
	overage, err = svc.ConsumeMinutes(context.Background(), "user-1", PoolSingle, 3)
	if err != nil {
		t.Fatalf("consume after exhaustion: %v", err)
	}
	if overage != 3 {
		t.Fatalf("expected full overage 3, got %d", overage)
	}
}

func TestConsumeMinutes_PoolsAreIndependent(t *testing.T) {
	svc, repo := newTestService(t)
	rec, _ := svc.Activate(context.Background(), "user-1", "plan-basic")

	if _, err := svc.ConsumeMinutes(context.Background(), "user-1", PoolBatch, 30); err != nil {
		t.Fatalf("consume batch: %v", err)
	}
	stored, _ := repo.Get(rec.ID)
	if stored.RemainingBatchMinutes != 70 {
		t.Fatalf("expected batch 70, got %d", stored.RemainingBatchMinutes)
	}
	if stored.RemainingSingleMinutes != 10 || stored.RemainingTransferMinutes != 20 {
		t.Fatalf("other pools must be untouched: %+v", stored)
	}
}

func TestConsumeMinutes_NoActiveSubscription(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.ConsumeMinutes(context.Background(), "ghost", PoolSingle, 5); !errors.Is(err, ErrNoActiveSubscription) {
		t.Fatalf("expected ErrNoActiveSubscription, got %v", err)
	}
}

func TestDeactivate_IsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Activate(context.Background(), "user-1", "plan-basic"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := svc.Deactivate(context.Background(), "user-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	// No active record left: still fine.
	if err := svc.Deactivate(context.Background(), "user-1"); err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
}

func TestExpireDue_FlipsOnlyExpiredRecords(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, NewMemoryPlanRepo(testPlan(), Plan{ID: "plan-forever", SingleMinutes: 10}))

	base := time.Unix(1700000000, 0).UTC()
	svc.SetClock(func() time.Time { return base })

	expiring, _ := svc.Activate(context.Background(), "user-1", "plan-basic")
	forever, _ := svc.Activate(context.Background(), "user-2", "plan-forever")

	svc.SetClock(func() time.Time { return base.Add(31 * 24 * time.Hour) })
	n, err := svc.ExpireDue(context.Background())
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expiry, got %d", n)
	}

	if got, _ := repo.Get(expiring.ID); got.Status != StatusInactive {
		t.Fatalf("expected expiring record inactive")
	}
	if got, _ := repo.Get(forever.ID); got.Status != StatusActive {
		t.Fatalf("record without expiry must stay active")
	}
}
