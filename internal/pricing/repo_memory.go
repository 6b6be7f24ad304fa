package pricing

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	records []OveragePricing
}

func NewMemoryRepo(records ...OveragePricing) *MemoryRepo {
	return &MemoryRepo{records: records}
}

// Delete drops the record for a unit. Test helper.
func (r *MemoryRepo) Delete(unit Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	for _, p := range r.records {
		if p.Unit != unit {
			kept = append(kept, p)
		}
	}
	r.records = kept
}

func (r *MemoryRepo) Upsert(ctx context.Context, p OveragePricing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].Unit == p.Unit {
			r.records[i] = p
			return nil
		}
	}
	r.records = append(r.records, p)
	return nil
}

func (r *MemoryRepo) FindByUnit(ctx context.Context, unit Unit) (OveragePricing, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.records {
		if p.Unit == unit {
			return p, true, nil
		}
	}
	return OveragePricing{}, false, nil
}
