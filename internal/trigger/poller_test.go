package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ivr-billing/internal/callprovider"
	"ivr-billing/internal/subscription"
	"ivr-billing/internal/usage"
)

func seedActiveRecord(t *testing.T, f *fixture, callID string, startedAgo time.Duration) {
	t.Helper()
	started := testNow.Add(-startedAgo)
	if err := f.records.Upsert(context.Background(), usage.CallDurationRecord{
		CallID:            callID,
		PathwayID:         "pw-1",
		UserID:            "user-1",
		Status:            callprovider.StatusStarted,
		Pool:              subscription.PoolSingle,
		StartedAt:         &started,
		AdditionalMinutes: decimal.Zero,
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func TestPollerRunOnce_SettlesCompletedCall(t *testing.T) {
	f := newFixture(t)
	poller := NewPoller(f.records, f.provider, f.pipeline)

	seedActiveRecord(t, f, "call-1", 15*time.Minute)
	started := testNow.Add(-15 * time.Minute)
	ended := testNow
	f.provider.SetCall(callprovider.CallInfo{
		CallID:      "call-1",
		QueueStatus: callprovider.StatusComplete,
		StartedAt:   &started,
		EndAt:       &ended,
	})

	if err := poller.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	rec, err := f.records.GetByCallID(context.Background(), "call-1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Status != callprovider.StatusComplete || !rec.Charged {
		t.Fatalf("expected settled and charged record, got %+v", rec)
	}
	if len(f.custody.Transfers()) != 1 {
		t.Fatalf("expected one transfer")
	}
}

func TestPollerRunOnce_ForceStopsOverBudgetCall(t *testing.T) {
	f := newFixture(t)
	poller := NewPoller(f.records, f.provider, f.pipeline)

	// 12 minutes elapsed against a 10 minute pool.
	seedActiveRecord(t, f, "call-1", 12*time.Minute)
	started := testNow.Add(-12 * time.Minute)
	f.provider.SetCall(callprovider.CallInfo{
		CallID:      "call-1",
		QueueStatus: callprovider.StatusStarted,
		StartedAt:   &started,
	})

	if err := poller.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if got := f.provider.Stopped(); len(got) != 1 || got[0] != "call-1" {
		t.Fatalf("expected force stop, got %v", got)
	}
	rec, _ := f.records.GetByCallID(context.Background(), "call-1")
	if rec.Status != callprovider.StatusTerminated {
		t.Fatalf("expected terminated, got %s", rec.Status)
	}
	if !rec.AdditionalMinutes.Equal(decimal.NewFromInt(2)) || !rec.Charged {
		t.Fatalf("expected 2 charged overage minutes, got %+v", rec)
	}
}

func TestPollerRunOnce_OneFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	poller := NewPoller(f.records, f.provider, f.pipeline)

	// call-0 is unknown at the provider; call-1 completes normally.
	seedActiveRecord(t, f, "call-0", 5*time.Minute)
	seedActiveRecord(t, f, "call-1", 4*time.Minute)
	started := testNow.Add(-4 * time.Minute)
	ended := testNow
	f.provider.SetCall(callprovider.CallInfo{
		CallID:      "call-1",
		QueueStatus: callprovider.StatusComplete,
		StartedAt:   &started,
		EndAt:       &ended,
	})

	if err := poller.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	rec, err := f.records.GetByCallID(context.Background(), "call-1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Status != callprovider.StatusComplete {
		t.Fatalf("healthy call must still settle, got %s", rec.Status)
	}
}
