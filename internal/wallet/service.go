package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ivr-billing/internal/currency"
)

var (
	ErrNotFound         = errors.New("wallet: not found")
	ErrInvalidArgument  = errors.New("wallet: invalid argument")
	ErrDuplicateAccount = errors.New("wallet: account already exists for currency")
)

// AccountRepo is the persistence contract for virtual accounts.
//
// ListByUser must return a stable order (creation order); the charging
// engine picks the first account with sufficient balance, so ordering must
// not change between invocations.
type AccountRepo interface {
	ListByUser(ctx context.Context, userID string) ([]VirtualAccount, error)
	GetByUserCurrency(ctx context.Context, userID string, cur currency.Currency) (VirtualAccount, error)
	Create(ctx context.Context, a VirtualAccount) error
}

// TransactionRepo is the persistence contract for the transaction log.
// It MUST be append-only. No Update/Delete methods are provided by design.
type TransactionRepo interface {
	Append(ctx context.Context, t Transaction) error
	ListByUser(ctx context.Context, userID string) ([]Transaction, error)
}

// Service provides virtual-account registration and transaction logging.
type Service struct {
	accounts AccountRepo
	txs      TransactionRepo
	clock    func() time.Time
}

func NewService(accounts AccountRepo, txs TransactionRepo) *Service {
	return &Service{accounts: accounts, txs: txs, clock: time.Now}
}

type RegisterAccountRequest struct {
	UserID              string `json:"user_id"`
	Currency            string `json:"currency"`
	AccountID           string `json:"account_id"`
	DepositAddress      string `json:"deposit_address,omitempty"`
	MainWalletAccountID string `json:"main_wallet_account_id"`
}

// RegisterAccount records a custody account created for (user, currency).
// One account per currency per user; re-registration is rejected.
func (s *Service) RegisterAccount(ctx context.Context, req RegisterAccountRequest) (VirtualAccount, error) {
	if req.UserID == "" || req.AccountID == "" || req.MainWalletAccountID == "" {
		return VirtualAccount{}, ErrInvalidArgument
	}
	cur, err := currency.Parse(req.Currency)
	if err != nil {
		return VirtualAccount{}, err
	}

	if _, err := s.accounts.GetByUserCurrency(ctx, req.UserID, cur); err == nil {
		return VirtualAccount{}, ErrDuplicateAccount
	} else if !errors.Is(err, ErrNotFound) {
		return VirtualAccount{}, err
	}

	a := VirtualAccount{
		ID:                  uuid.NewString(),
		UserID:              req.UserID,
		Currency:            cur,
		AccountID:           req.AccountID,
		DepositAddress:      req.DepositAddress,
		MainWalletAccountID: req.MainWalletAccountID,
		CreatedAt:           s.clock().UTC(),
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return VirtualAccount{}, err
	}
	return a, nil
}

// Accounts lists a user's virtual accounts in stable (creation) order.
func (s *Service) Accounts(ctx context.Context, userID string) ([]VirtualAccount, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return s.accounts.ListByUser(ctx, userID)
}

// LogTransaction appends one entry to the transaction log.
func (s *Service) LogTransaction(ctx context.Context, userID, paymentReference string, typ TransactionType) (Transaction, error) {
	if userID == "" || paymentReference == "" || typ == "" {
		return Transaction{}, ErrInvalidArgument
	}
	t := Transaction{
		ID:               uuid.NewString(),
		UserID:           userID,
		PaymentReference: paymentReference,
		Type:             typ,
		CreatedAt:        s.clock().UTC(),
	}
	if err := s.txs.Append(ctx, t); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Transactions lists a user's transaction log entries.
func (s *Service) Transactions(ctx context.Context, userID string) ([]Transaction, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return s.txs.ListByUser(ctx, userID)
}
