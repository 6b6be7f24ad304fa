package wallet

import (
	"time"

	"ivr-billing/internal/currency"
)

// VirtualAccount is a custodial, per-currency balance holder for one user.
//
// Balance invariant: the custody provider is the source of truth. This model
// deliberately carries no balance field so nothing can charge against a
// stale local copy.
type VirtualAccount struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Currency currency.Currency `json:"currency" db:"currency"`

	// AccountID is the custody provider's account reference.
	AccountID string `json:"account_id" db:"account_id"`

	// DepositAddress is where the user tops up this account.
	DepositAddress string `json:"deposit_address,omitempty" db:"deposit_address"`

	// MainWalletAccountID is the platform's receiving account for this
	// currency; overage charges are transferred here.
	MainWalletAccountID string `json:"main_wallet_account_id" db:"main_wallet_account_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Transaction is an immutable, append-only audit record of a
// ledger-affecting action.
//
// Invariants:
// - Entries are never updated or deleted.
// - Exactly one entry per successful external transfer.
// - Entries are the canonical record for reconciliation, independent of the
//   mutable charged flag on call duration records.
type Transaction struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// PaymentReference is the custody provider's reference for the transfer.
	PaymentReference string `json:"payment_reference" db:"payment_reference"`

	Type TransactionType `json:"type" db:"type"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type TransactionType string

const (
	TransactionTypeOverageCharge       TransactionType = "overage_charge"
	TransactionTypeSubscriptionPayment TransactionType = "subscription_payment"
	TransactionTypeTopUp               TransactionType = "top_up"
	TransactionTypeRefund              TransactionType = "refund"
)
