package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"ivr-billing/internal/currency"
	"ivr-billing/internal/custody"
	"ivr-billing/internal/pricing"
	"ivr-billing/internal/subscription"
	"ivr-billing/internal/usage"
	"ivr-billing/internal/wallet"
	"ivr-billing/pkg/logger"
)

// Outcome classifies one charge attempt.
type Outcome string

const (
	// OutcomeCharged: exactly one transfer was issued and the record flagged.
	OutcomeCharged Outcome = "charged"
	// OutcomeAlreadyCharged: the record was charged by an earlier invocation.
	OutcomeAlreadyCharged Outcome = "already_charged"
	// OutcomeNoOverage: the record carries no additional minutes.
	OutcomeNoOverage Outcome = "no_overage"
	// OutcomeInsufficientBalance: no account could cover the charge; the
	// record stays uncharged for the safety net to retry after a top-up.
	OutcomeInsufficientBalance Outcome = "insufficient_balance"
	// OutcomeError: the attempt failed for a non-balance reason; the record
	// stays uncharged and the safety net retries.
	OutcomeError Outcome = "error"
	// OutcomeSkipped: another trigger holds the call's lock. Nothing was
	// observed or charged here; the holder reports the real outcome.
	OutcomeSkipped Outcome = "skipped"
)

// Engine converts overage minutes into a cryptocurrency debit against one of
// the user's virtual accounts, at most once per call.
//
// Step order within an invocation is fixed: balance fetch, price fetch,
// threshold check, transfer, transaction log, charged-flag flip. Each step's
// output gates the next.
//
// Concurrency contract: callers hold the per-call Locker around every
// invocation (the trigger orchestrator does this), so the charged re-check
// at the top of ChargeOverage is authoritative. The conditional flip in
// Repo.ClaimCharge is a structural backstop should a lock ever expire
// mid-section.
type Engine struct {
	records  usage.Repo
	accounts wallet.AccountRepo
	wallets  *wallet.Service
	custody  custody.Client
	rates    *currency.RateService
	pricing  *pricing.Service
	subs     *subscription.Service
}

func NewEngine(
	records usage.Repo,
	accounts wallet.AccountRepo,
	wallets *wallet.Service,
	custodyClient custody.Client,
	rates *currency.RateService,
	pricingSvc *pricing.Service,
	subs *subscription.Service,
) *Engine {
	return &Engine{
		records:  records,
		accounts: accounts,
		wallets:  wallets,
		custody:  custodyClient,
		rates:    rates,
		pricing:  pricingSvc,
		subs:     subs,
	}
}

// ChargeOverage bills the uncharged overage on a call duration record.
// The charged flag is the authoritative idempotency gate: an invocation
// against an already-charged record is a no-op.
func (e *Engine) ChargeOverage(ctx context.Context, callID string) (Outcome, error) {
	log := logger.From(ctx).With("call_id", callID)

	// Re-check immediately before any debit work. The caller holds the
	// per-call lock, so nothing can flip the flag under us past this point.
	rec, err := e.records.GetByCallID(ctx, callID)
	if err != nil {
		return OutcomeError, err
	}
	if rec.Charged {
		return OutcomeAlreadyCharged, nil
	}
	if rec.AdditionalMinutes.Sign() <= 0 {
		return OutcomeNoOverage, nil
	}

	// Fail closed without a per-minute price. No pricing row, no charge.
	totalUSD, err := e.pricing.OverageChargeUSD(ctx, rec.AdditionalMinutes)
	if err != nil {
		if errors.Is(err, pricing.ErrPricingNotFound) {
			log.Error("no per-minute overage pricing configured; charge skipped")
		}
		return OutcomeError, err
	}

	accounts, err := e.accounts.ListByUser(ctx, rec.UserID)
	if err != nil {
		return OutcomeError, err
	}
	if len(accounts) == 0 {
		log.Warn("overage charge deferred: user has no virtual accounts", "user_id", rec.UserID)
		return e.deferInsufficient(ctx, rec.UserID)
	}

	// First account that can cover the charge wins; at most one debit.
	var lastErr error
	for _, acct := range accounts {
		outcome, err := e.chargeAccount(ctx, rec.UserID, callID, acct, totalUSD)
		switch outcome {
		case OutcomeCharged:
			return OutcomeCharged, nil
		case OutcomeInsufficientBalance:
			continue
		default:
			// Non-balance failure on this account; remember it and try the
			// next currency before deferring.
			lastErr = err
			log.Warn("charge attempt failed on account",
				"account_id", acct.AccountID, "currency", acct.Currency.String(), "err", err)
		}
	}
	if lastErr != nil {
		return OutcomeError, lastErr
	}

	log.Info("overage charge deferred: insufficient balance across all accounts",
		"user_id", rec.UserID, "charge_usd", totalUSD.String())
	return e.deferInsufficient(ctx, rec.UserID)
}

// chargeAccount runs the fixed step sequence against a single account.
func (e *Engine) chargeAccount(ctx context.Context, userID, callID string, acct wallet.VirtualAccount, totalUSD decimal.Decimal) (Outcome, error) {
	// 1. Live balance. Never trust a cached copy for a debit decision.
	balance, err := e.custody.Balance(ctx, acct.AccountID)
	if err != nil {
		return OutcomeError, fmt.Errorf("billing: balance fetch: %w", err)
	}

	// 2. Spot price for the account's currency.
	price, err := e.rates.Price(ctx, acct.Currency)
	if err != nil {
		return OutcomeError, fmt.Errorf("billing: price fetch: %w", err)
	}

	// 3. Threshold check in USD.
	balanceUSD := currency.CryptoToUsd(balance, price)
	if balanceUSD.LessThan(totalUSD) {
		return OutcomeInsufficientBalance, nil
	}

	// 4. Transfer the converted amount to the platform's receiving account.
	amount, err := currency.UsdToCrypto(totalUSD, price)
	if err != nil {
		return OutcomeError, err
	}
	ref, err := e.custody.Transfer(ctx, acct.AccountID, acct.MainWalletAccountID, amount)
	if err != nil {
		if errors.Is(err, custody.ErrInsufficientFunds) {
			// Lost a race against a concurrent withdrawal; try other accounts.
			return OutcomeInsufficientBalance, nil
		}
		return OutcomeError, fmt.Errorf("billing: transfer: %w", err)
	}

	// 5. One transaction log entry per successful transfer.
	if _, err := e.wallets.LogTransaction(ctx, userID, ref, wallet.TransactionTypeOverageCharge); err != nil {
		// The transfer went through and must not be re-issued; surface the
		// missing log entry loudly and keep going to the flag flip.
		logger.From(ctx).Error("transaction log append failed after transfer",
			"call_id", callID, "payment_reference", ref, "err", err)
	}

	// 6. Flip the idempotency gate.
	won, err := e.records.ClaimCharge(ctx, callID)
	if err != nil {
		logger.From(ctx).Error("charged-flag flip failed after transfer",
			"call_id", callID, "payment_reference", ref, "err", err)
		return OutcomeError, err
	}
	if !won {
		// Unreachable while the per-call lock holds; if it happens the lock
		// was lost (TTL expiry) and reconciliation must look at the log.
		logger.From(ctx).Error("charged flag already set after transfer; possible lock expiry",
			"call_id", callID, "payment_reference", ref)
	}

	logger.From(ctx).Info("overage charged",
		"call_id", callID,
		"user_id", userID,
		"currency", acct.Currency.String(),
		"amount", amount.String(),
		"charge_usd", totalUSD.String(),
		"payment_reference", ref)
	return OutcomeCharged, nil
}

// deferInsufficient records the deferral side effects: the subscription is
// parked inactive until the user tops up, and the record stays uncharged so
// the hourly safety net retries.
func (e *Engine) deferInsufficient(ctx context.Context, userID string) (Outcome, error) {
	if err := e.subs.Deactivate(ctx, userID); err != nil {
		logger.From(ctx).Error("subscription deactivation failed after balance shortfall",
			"user_id", userID, "err", err)
	}
	return OutcomeInsufficientBalance, nil
}
