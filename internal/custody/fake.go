package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Fake is an in-memory Client for tests. Balances are mutated by Transfer
// so concurrent double-charge attempts are visible in the final balance.
type Fake struct {
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	transfers []FakeTransfer
	seq       int

	// TransferErr, when set, is returned by Transfer.
	TransferErr error
}

type FakeTransfer struct {
	Sender    string
	Recipient string
	Amount    decimal.Decimal
	Reference string
}

func NewFake() *Fake {
	return &Fake{balances: map[string]decimal.Decimal{}}
}

func (f *Fake) SetBalance(accountID string, balance decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[accountID] = balance
}

func (f *Fake) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[accountID]
	if !ok {
		return decimal.Zero, ErrAccountNotFound
	}
	return b, nil
}

func (f *Fake) Transfer(ctx context.Context, senderAccountID, recipientAccountID string, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TransferErr != nil {
		return "", f.TransferErr
	}
	b, ok := f.balances[senderAccountID]
	if !ok {
		return "", ErrAccountNotFound
	}
	if b.LessThan(amount) {
		return "", ErrInsufficientFunds
	}
	f.balances[senderAccountID] = b.Sub(amount)
	f.balances[recipientAccountID] = f.balances[recipientAccountID].Add(amount)

	f.seq++
	ref := fmt.Sprintf("ref-%d", f.seq)
	f.transfers = append(f.transfers, FakeTransfer{
		Sender:    senderAccountID,
		Recipient: recipientAccountID,
		Amount:    amount,
		Reference: ref,
	})
	return ref, nil
}

// Transfers returns issued transfers in order.
func (f *Fake) Transfers() []FakeTransfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeTransfer, len(f.transfers))
	copy(out, f.transfers)
	return out
}
