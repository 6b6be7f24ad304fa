package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ivr-billing/internal/callprovider"
)

func TestMemoryRepo_UpsertKeyedByCallAndPathway(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()

	rec := CallDurationRecord{CallID: "c1", PathwayID: "p1", UserID: "u1", Status: callprovider.StatusStarted, CreatedAt: now, UpdatedAt: now}
	if err := repo.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec.Status = callprovider.StatusComplete
	rec.DurationSeconds = 120
	if err := repo.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("update: %v", err)
	}
	if repo.Count() != 1 {
		t.Fatalf("same key must update, not insert; have %d records", repo.Count())
	}

	rec.PathwayID = "p2"
	if err := repo.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("second pathway: %v", err)
	}
	if repo.Count() != 2 {
		t.Fatalf("different pathway must insert; have %d records", repo.Count())
	}
}

func TestMemoryRepo_UpsertNeverTouchesChargedFlag(t *testing.T) {
	repo := NewMemoryRepo()

	rec := CallDurationRecord{CallID: "c1", PathwayID: "p1", UserID: "u1", Status: callprovider.StatusComplete, AdditionalMinutes: decimal.NewFromInt(5)}
	if err := repo.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if won, err := repo.ClaimCharge(context.Background(), "c1"); err != nil || !won {
		t.Fatalf("claim: won=%v err=%v", won, err)
	}

	// A late observation writes the record again; the flag must survive.
	rec.Charged = false
	if err := repo.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, err := repo.GetByCallID(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Charged {
		t.Fatalf("charged flag must be owned by ClaimCharge only")
	}
}

func TestMemoryRepo_ClaimChargeWinsExactlyOnce(t *testing.T) {
	repo := NewMemoryRepo()
	if err := repo.Upsert(context.Background(), CallDurationRecord{CallID: "c1", PathwayID: "p1", UserID: "u1", AdditionalMinutes: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			won, err := repo.ClaimCharge(context.Background(), "c1")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestMemoryRepo_ClaimChargeUnknownCall(t *testing.T) {
	repo := NewMemoryRepo()
	if _, err := repo.ClaimCharge(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepo_Listing(t *testing.T) {
	repo := NewMemoryRepo()
	seed := []CallDurationRecord{
		{CallID: "c1", PathwayID: "p", UserID: "u", Status: callprovider.StatusStarted},
		{CallID: "c2", PathwayID: "p", UserID: "u", Status: callprovider.StatusComplete, AdditionalMinutes: decimal.NewFromInt(2)},
		{CallID: "c3", PathwayID: "p", UserID: "u", Status: callprovider.StatusComplete, AdditionalMinutes: decimal.NewFromInt(3), Charged: true},
	}
	for _, r := range seed {
		if err := repo.Upsert(context.Background(), r); err != nil {
			t.Fatalf("seed %s: %v", r.CallID, err)
		}
	}

	active, err := repo.ListActive(context.Background())
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].CallID != "c1" {
		t.Fatalf("expected only the running call, got %+v", active)
	}

	uncharged, err := repo.ListUncharged(context.Background())
	if err != nil {
		t.Fatalf("uncharged: %v", err)
	}
	if len(uncharged) != 1 || uncharged[0].CallID != "c2" {
		t.Fatalf("expected only the pending overage call, got %+v", uncharged)
	}
}
