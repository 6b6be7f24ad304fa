package wallet

import (
	"context"
	"database/sql"
	"errors"

	"ivr-billing/internal/currency"
)

// PostgresAccountRepo persists virtual accounts.
//
// Assumed table:
//   virtual_accounts(id, user_id, currency, account_id, deposit_address,
//                    main_wallet_account_id, created_at)
//   UNIQUE (user_id, currency)
type PostgresAccountRepo struct {
	db *sql.DB
}

func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

func (r *PostgresAccountRepo) ListByUser(ctx context.Context, userID string) ([]VirtualAccount, error) {
	const q = `
SELECT id, user_id, currency, account_id, deposit_address, main_wallet_account_id, created_at
FROM virtual_accounts
WHERE user_id = $1
ORDER BY created_at, id
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VirtualAccount
	for rows.Next() {
		var a VirtualAccount
		if err := rows.Scan(&a.ID, &a.UserID, &a.Currency, &a.AccountID, &a.DepositAddress, &a.MainWalletAccountID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresAccountRepo) GetByUserCurrency(ctx context.Context, userID string, cur currency.Currency) (VirtualAccount, error) {
	const q = `
SELECT id, user_id, currency, account_id, deposit_address, main_wallet_account_id, created_at
FROM virtual_accounts
WHERE user_id = $1 AND currency = $2
`
	var a VirtualAccount
	err := r.db.QueryRowContext(ctx, q, userID, cur).Scan(
		&a.ID, &a.UserID, &a.Currency, &a.AccountID, &a.DepositAddress, &a.MainWalletAccountID, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VirtualAccount{}, ErrNotFound
		}
		return VirtualAccount{}, err
	}
	return a, nil
}

func (r *PostgresAccountRepo) Create(ctx context.Context, a VirtualAccount) error {
	const q = `
INSERT INTO virtual_accounts (
  id, user_id, currency, account_id, deposit_address, main_wallet_account_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.UserID, a.Currency, a.AccountID, a.DepositAddress, a.MainWalletAccountID, a.CreatedAt,
	)
	return err
}

// PostgresTransactionRepo persists transaction log entries.
//
// Assumed table (INSERT-only policy):
//   transactions(id, user_id, payment_reference, type, created_at)
type PostgresTransactionRepo struct {
	db *sql.DB
}

func NewPostgresTransactionRepo(db *sql.DB) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{db: db}
}

func (r *PostgresTransactionRepo) Append(ctx context.Context, t Transaction) error {
	const q = `
INSERT INTO transactions (id, user_id, payment_reference, type, created_at)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := r.db.ExecContext(ctx, q, t.ID, t.UserID, t.PaymentReference, t.Type, t.CreatedAt)
	return err
}

func (r *PostgresTransactionRepo) ListByUser(ctx context.Context, userID string) ([]Transaction, error) {
	const q = `
SELECT id, user_id, payment_reference, type, created_at
FROM transactions
WHERE user_id = $1
ORDER BY created_at, id
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.PaymentReference, &t.Type, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
