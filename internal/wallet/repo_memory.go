package wallet

import (
	"context"
	"sort"
	"sync"

	"ivr-billing/internal/currency"
)

// MemoryAccountRepo is an in-memory AccountRepo useful for tests.
type MemoryAccountRepo struct {
	mu       sync.Mutex
	accounts []VirtualAccount
}

func NewMemoryAccountRepo() *MemoryAccountRepo { return &MemoryAccountRepo{} }

func (r *MemoryAccountRepo) ListByUser(ctx context.Context, userID string) ([]VirtualAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []VirtualAccount
	for _, a := range r.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryAccountRepo) GetByUserCurrency(ctx context.Context, userID string, cur currency.Currency) (VirtualAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.UserID == userID && a.Currency == cur {
			return a, nil
		}
	}
	return VirtualAccount{}, ErrNotFound
}

func (r *MemoryAccountRepo) Create(ctx context.Context, a VirtualAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = append(r.accounts, a)
	return nil
}

// MemoryTransactionRepo is an in-memory append-only TransactionRepo for tests.
type MemoryTransactionRepo struct {
	mu  sync.Mutex
	txs []Transaction
}

func NewMemoryTransactionRepo() *MemoryTransactionRepo { return &MemoryTransactionRepo{} }

func (r *MemoryTransactionRepo) Append(ctx context.Context, t Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, t)
	return nil
}

func (r *MemoryTransactionRepo) ListByUser(ctx context.Context, userID string) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transaction
	for _, t := range r.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// All returns every appended entry, in order.
func (r *MemoryTransactionRepo) All() []Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transaction, len(r.txs))
	copy(out, r.txs)
	return out
}
