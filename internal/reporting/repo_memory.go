package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"ivr-billing/internal/usage"
)

// MemoryRepo is an in-memory reporting repository for tests and early
// development.
type MemoryRepo struct {
	mu      sync.Mutex
	Records []usage.CallDurationRecord
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListRecords(ctx context.Context, userID string, from, to time.Time) ([]usage.CallDurationRecord, error) {
	if userID == "" {
		return nil, errors.New("user_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]usage.CallDurationRecord, 0)
	for _, rec := range r.Records {
		if rec.UserID != userID {
			continue
		}
		if !rec.CreatedAt.IsZero() {
			if rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
