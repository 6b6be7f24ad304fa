package subscription

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo useful for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: map[string]*Record{}}
}

func (m *MemoryRepo) GetActiveByUser(ctx context.Context, userID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.UserID == userID && r.Status == StatusActive {
			return *r, nil
		}
	}
	return Record{}, ErrNotFound
}

// Supersede applies the flip and the insert under one lock: both or neither.
func (m *MemoryRepo) Supersede(ctx context.Context, prevID string, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var prev *Record
	if prevID != "" {
		var ok bool
		prev, ok = m.records[prevID]
		if !ok {
			return ErrNotFound
		}
	}
	if prev != nil {
		prev.Status = StatusInactive
		prev.UpdatedAt = r.CreatedAt
	}
	cp := r
	m.records[r.ID] = &cp
	return nil
}

func (m *MemoryRepo) SetStatus(ctx context.Context, id string, status Status, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = now
	return nil
}

func (m *MemoryRepo) DecrementPool(ctx context.Context, id string, pool Pool, minutes int, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return 0, ErrNotFound
	}

	var slot *int
	switch pool {
	case PoolBatch:
		slot = &r.RemainingBatchMinutes
	case PoolSingle:
		slot = &r.RemainingSingleMinutes
	case PoolTransfer:
		slot = &r.RemainingTransferMinutes
	default:
		return 0, ErrInvalidArgument
	}

	previous := *slot
	next := previous - minutes
	if next < 0 {
		next = 0
	}
	*slot = next
	r.UpdatedAt = now
	return previous, nil
}

func (m *MemoryRepo) ListExpiredActive(ctx context.Context, now time.Time) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.Status == StatusActive && r.Expired(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

// Get returns a record by id for test assertions.
func (m *MemoryRepo) Get(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// MemoryPlanRepo is an in-memory PlanRepo for tests.
type MemoryPlanRepo struct {
	mu    sync.Mutex
	plans map[string]Plan
}

func NewMemoryPlanRepo(plans ...Plan) *MemoryPlanRepo {
	m := &MemoryPlanRepo{plans: map[string]Plan{}}
	for _, p := range plans {
		m.plans[p.ID] = p
	}
	return m
}

func (m *MemoryPlanRepo) Get(ctx context.Context, planID string) (Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[planID]
	if !ok {
		return Plan{}, ErrNotFound
	}
	return p, nil
}
