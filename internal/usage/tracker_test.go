package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ivr-billing/internal/callprovider"
	"ivr-billing/internal/subscription"
)

var testNow = time.Unix(1700000000, 0).UTC()

func newTestTracker(t *testing.T, singleMinutes int) (*Tracker, *MemoryRepo, *subscription.MemoryRepo, *callprovider.Fake) {
	t.Helper()

	subRepo := subscription.NewMemoryRepo()
	plans := subscription.NewMemoryPlanRepo(subscription.Plan{
		ID:            "plan-1",
		SingleMinutes: singleMinutes,
		BatchMinutes:  singleMinutes,
	})
	subSvc := subscription.NewService(subRepo, plans)
	subSvc.SetClock(func() time.Time { return testNow })
	if _, err := subSvc.Activate(context.Background(), "user-1", "plan-1"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	repo := NewMemoryRepo()
	provider := callprovider.NewFake()
	tracker := NewTracker(repo, subSvc, provider)
	tracker.SetClock(func() time.Time { return testNow })
	return tracker, repo, subRepo, provider
}

func TestObserve_CompletedCallConsumesPoolAndComputesOverage(t *testing.T) {
	tracker, _, subRepo, _ := newTestTracker(t, 10)

	started := testNow.Add(-15 * time.Minute)
	ended := testNow
	rec, err := tracker.Observe(context.Background(), Observation{
		CallID:    "call-1",
		PathwayID: "pw-1",
		UserID:    "user-1",
		Pool:      subscription.PoolSingle,
		Status:    callprovider.StatusComplete,
		StartedAt: &started,
		EndAt:     &ended,
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	// 15 minutes against a 10 minute pool: 5 minutes of overage.
	if rec.DurationSeconds != 900 {
		t.Fatalf("expected 900s duration, got %d", rec.DurationSeconds)
	}
	if !rec.AdditionalMinutes.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5 additional minutes, got %s", rec.AdditionalMinutes)
	}
	if rec.Charged {
		t.Fatalf("observe must never flip the charged flag")
	}

	sub, err := subRepo.GetActiveByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("sub lookup: %v", err)
	}
	if sub.RemainingSingleMinutes != 0 {
		t.Fatalf("expected zeroed pool, got %d", sub.RemainingSingleMinutes)
	}
}

func TestObserve_CompletedWithinPoolHasNoOverage(t *testing.T) {
	tracker, _, subRepo, _ := newTestTracker(t, 10)

	rec, err := tracker.Observe(context.Background(), Observation{
		CallID:            "call-1",
		UserID:            "user-1",
		Status:            callprovider.StatusComplete,
		CallLengthSeconds: 240,
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if rec.AdditionalMinutes.Sign() != 0 {
		t.Fatalf("expected no overage, got %s", rec.AdditionalMinutes)
	}
	sub, _ := subRepo.GetActiveByUser(context.Background(), "user-1")
	if sub.RemainingSingleMinutes != 6 {
		t.Fatalf("expected 6 minutes left, got %d", sub.RemainingSingleMinutes)
	}
}

func TestObserve_InProgressCallOverBudgetIsForceStopped(t *testing.T) {
	tracker, _, subRepo, provider := newTestTracker(t, 10)

	started := testNow.Add(-12 * time.Minute)
	rec, err := tracker.Observe(context.Background(), Observation{
		CallID:    "call-1",
		UserID:    "user-1",
		Status:    callprovider.StatusStarted,
		StartedAt: &started,
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	if got := provider.Stopped(); len(got) != 1 || got[0] != "call-1" {
		t.Fatalf("expected force stop of call-1, got %v", got)
	}
	if rec.Status != callprovider.StatusTerminated {
		t.Fatalf("expected terminated, got %s", rec.Status)
	}
	if rec.EndedAt == nil || !rec.EndedAt.Equal(testNow) {
		t.Fatalf("expected end time at observation, got %v", rec.EndedAt)
	}
	// 12 elapsed minutes against 10: 2 minutes of overage.
	if !rec.AdditionalMinutes.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected 2 additional minutes, got %s", rec.AdditionalMinutes)
	}

	sub, _ := subRepo.GetActiveByUser(context.Background(), "user-1")
	if sub.RemainingSingleMinutes != 0 {
		t.Fatalf("expected zeroed pool, got %d", sub.RemainingSingleMinutes)
	}
}

func TestObserve_InProgressCallUnderBudgetIsLeftRunning(t *testing.T) {
	tracker, _, subRepo, provider := newTestTracker(t, 10)

	started := testNow.Add(-5 * time.Minute)
	rec, err := tracker.Observe(context.Background(), Observation{
		CallID:    "call-1",
		UserID:    "user-1",
		Status:    callprovider.StatusStarted,
		StartedAt: &started,
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(provider.Stopped()) != 0 {
		t.Fatalf("call under budget must not be stopped")
	}
	if rec.Status != callprovider.StatusStarted {
		t.Fatalf("expected started, got %s", rec.Status)
	}

	// Minutes are only consumed on settlement.
	sub, _ := subRepo.GetActiveByUser(context.Background(), "user-1")
	if sub.RemainingSingleMinutes != 10 {
		t.Fatalf("pool must be untouched while running, got %d", sub.RemainingSingleMinutes)
	}
}

func TestObserve_StopFailureAbortsWithoutConsuming(t *testing.T) {
	tracker, repo, subRepo, provider := newTestTracker(t, 10)
	provider.StopErr = errors.New("provider down")

	started := testNow.Add(-12 * time.Minute)
	_, err := tracker.Observe(context.Background(), Observation{
		CallID:    "call-1",
		UserID:    "user-1",
		Status:    callprovider.StatusStarted,
		StartedAt: &started,
	})
	if err == nil {
		t.Fatalf("expected error when force stop fails")
	}

	// Nothing was persisted or consumed; the next cycle retries cleanly.
	if repo.Count() != 0 {
		t.Fatalf("failed observation must not persist a record")
	}
	sub, _ := subRepo.GetActiveByUser(context.Background(), "user-1")
	if sub.RemainingSingleMinutes != 10 {
		t.Fatalf("pool must be untouched after aborted stop, got %d", sub.RemainingSingleMinutes)
	}
}

func TestObserve_ReobservationOfSettledRecordIsIdempotent(t *testing.T) {
	tracker, _, subRepo, _ := newTestTracker(t, 10)

	obs := Observation{
		CallID:            "call-1",
		UserID:            "user-1",
		Status:            callprovider.StatusComplete,
		CallLengthSeconds: 900,
	}
	first, err := tracker.Observe(context.Background(), obs)
	if err != nil {
		t.Fatalf("first observe: %v", err)
	}

	// Webhook and poll both deliver the terminal state.
	second, err := tracker.Observe(context.Background(), obs)
	if err != nil {
		t.Fatalf("second observe: %v", err)
	}
	if !second.AdditionalMinutes.Equal(first.AdditionalMinutes) || second.DurationSeconds != first.DurationSeconds {
		t.Fatalf("re-observation changed the record: %+v vs %+v", first, second)
	}

	sub, _ := subRepo.GetActiveByUser(context.Background(), "user-1")
	if sub.RemainingSingleMinutes != 0 {
		t.Fatalf("pool must be consumed exactly once, got %d", sub.RemainingSingleMinutes)
	}
}

func TestObserve_TerminatedAfterForceStopKeepsOriginalDuration(t *testing.T) {
	tracker, _, _, _ := newTestTracker(t, 10)

	started := testNow.Add(-12 * time.Minute)
	first, err := tracker.Observe(context.Background(), Observation{
		CallID:    "call-1",
		UserID:    "user-1",
		Status:    callprovider.StatusStarted,
		StartedAt: &started,
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	// The provider later reports the stop with its own (longer) length.
	later := testNow.Add(time.Minute)
	second, err := tracker.Observe(context.Background(), Observation{
		CallID:            "call-1",
		UserID:            "user-1",
		Status:            callprovider.StatusTerminated,
		StartedAt:         &started,
		EndAt:             &later,
		CallLengthSeconds: 780,
	})
	if err != nil {
		t.Fatalf("second observe: %v", err)
	}
	if second.DurationSeconds != first.DurationSeconds {
		t.Fatalf("duration must stay at elapsed-to-termination: %d vs %d", second.DurationSeconds, first.DurationSeconds)
	}
	if !second.AdditionalMinutes.Equal(first.AdditionalMinutes) {
		t.Fatalf("overage must not be recomputed after settlement")
	}
}

func TestObserve_QueuedCallOnlyRecordsState(t *testing.T) {
	tracker, repo, subRepo, _ := newTestTracker(t, 10)

	rec, err := tracker.Observe(context.Background(), Observation{
		CallID: "call-1",
		UserID: "user-1",
		Status: callprovider.StatusQueued,
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if rec.AdditionalMinutes.Sign() != 0 || rec.DurationSeconds != 0 {
		t.Fatalf("queued call must not accrue usage: %+v", rec)
	}
	if repo.Count() != 1 {
		t.Fatalf("expected stored record")
	}
	sub, _ := subRepo.GetActiveByUser(context.Background(), "user-1")
	if sub.RemainingSingleMinutes != 10 {
		t.Fatalf("pool must be untouched, got %d", sub.RemainingSingleMinutes)
	}
}

func TestObserve_WithoutActiveSubscriptionEverythingIsOverage(t *testing.T) {
	tracker, _, _, _ := newTestTracker(t, 10)

	rec, err := tracker.Observe(context.Background(), Observation{
		CallID:            "call-1",
		UserID:            "user-ghost",
		Status:            callprovider.StatusComplete,
		CallLengthSeconds: 300,
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if !rec.AdditionalMinutes.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected full 5 minutes of overage, got %s", rec.AdditionalMinutes)
	}
}

func TestObserve_RejectsInvalidInput(t *testing.T) {
	tracker, _, _, _ := newTestTracker(t, 10)

	if _, err := tracker.Observe(context.Background(), Observation{UserID: "u", Status: callprovider.StatusQueued}); !errors.Is(err, ErrInvalidObservation) {
		t.Fatalf("expected ErrInvalidObservation for missing call id, got %v", err)
	}
	if _, err := tracker.Observe(context.Background(), Observation{CallID: "c", UserID: "u", Status: callprovider.StatusStarted}); !errors.Is(err, ErrInvalidObservation) {
		t.Fatalf("expected ErrInvalidObservation for started call without start time, got %v", err)
	}
}
