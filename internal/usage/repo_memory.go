package usage

import (
	"context"
	"sort"
	"sync"
)

type recordKey struct {
	callID    string
	pathwayID string
}

// MemoryRepo is an in-memory Repo useful for tests. ClaimCharge is guarded
// by the repo mutex so concurrent claim attempts see the same at-most-once
// behavior as the Postgres conditional update.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[recordKey]CallDurationRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: map[recordKey]CallDurationRecord{}}
}

func (m *MemoryRepo) Upsert(ctx context.Context, r CallDurationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{r.CallID, r.PathwayID}
	if existing, ok := m.records[k]; ok {
		// charged is owned by ClaimCharge; created_at is immutable.
		r.Charged = existing.Charged
		r.CreatedAt = existing.CreatedAt
	}
	m.records[k] = r
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, callID, pathwayID string) (CallDurationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey{callID, pathwayID}]
	if !ok {
		return CallDurationRecord{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryRepo) GetByCallID(ctx context.Context, callID string) (CallDurationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.records {
		if k.callID == callID {
			return r, nil
		}
	}
	return CallDurationRecord{}, ErrNotFound
}

func (m *MemoryRepo) ListActive(ctx context.Context) ([]CallDurationRecord, error) {
	return m.filter(func(r CallDurationRecord) bool { return !r.Status.Terminal() })
}

func (m *MemoryRepo) ListUncharged(ctx context.Context) ([]CallDurationRecord, error) {
	return m.filter(func(r CallDurationRecord) bool { return r.NeedsCharge() })
}

func (m *MemoryRepo) filter(keep func(CallDurationRecord) bool) ([]CallDurationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CallDurationRecord
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallID < out[j].CallID })
	return out, nil
}

func (m *MemoryRepo) ClaimCharge(ctx context.Context, callID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.records {
		if k.callID != callID {
			continue
		}
		if r.Charged {
			return false, nil
		}
		r.Charged = true
		m.records[k] = r
		return true, nil
	}
	return false, ErrNotFound
}

// Count returns the number of stored records. Test helper.
func (m *MemoryRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
