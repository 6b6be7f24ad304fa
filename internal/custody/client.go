// Package custody wraps the external custody/ledger API that holds the
// platform's virtual accounts.
//
// Balance invariant: balances reported here are the source of truth. The
// billing engine must re-fetch a balance immediately before every debit
// decision; nothing in this repository caches custody balances.
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"ivr-billing/internal/config"
)

var (
	ErrAccountNotFound   = errors.New("custody: account not found")
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
)

// Client is the contract consumed by the billing engine.
type Client interface {
	// Balance returns the available balance of an account in its native currency.
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)

	// Transfer moves amount from sender to recipient and returns the
	// provider's payment reference on success.
	Transfer(ctx context.Context, senderAccountID, recipientAccountID string, amount decimal.Decimal) (string, error)
}

// HTTPClient implements Client against the REST API:
//   GET  {base}/ledger/account/{id}/balance -> {"availableBalance": "..."}
//   POST {base}/ledger/transaction          -> {"reference": "..."}
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(cfg config.CustodyConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type balanceResponse struct {
	AvailableBalance decimal.Decimal `json:"availableBalance"`
}

func (c *HTTPClient) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if accountID == "" {
		return decimal.Zero, errors.New("custody: account id is required")
	}
	url := c.baseURL + "/ledger/account/" + accountID + "/balance"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, ErrAccountNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("custody: balance status %d: %s", resp.StatusCode, body)
	}

	var out balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, err
	}
	return out.AvailableBalance, nil
}

type transferRequest struct {
	SenderAccountID    string `json:"senderAccountId"`
	RecipientAccountID string `json:"recipientAccountId"`
	Amount             string `json:"amount"`
}

type transferResponse struct {
	Reference string `json:"reference"`
}

func (c *HTTPClient) Transfer(ctx context.Context, senderAccountID, recipientAccountID string, amount decimal.Decimal) (string, error) {
	if senderAccountID == "" || recipientAccountID == "" {
		return "", errors.New("custody: sender and recipient account ids are required")
	}
	if amount.Sign() <= 0 {
		return "", errors.New("custody: transfer amount must be positive")
	}

	payload, err := json.Marshal(transferRequest{
		SenderAccountID:    senderAccountID,
		RecipientAccountID: recipientAccountID,
		Amount:             amount.String(),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ledger/transaction", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusUnprocessableEntity:
		// The provider signals an uncovered debit with a 4xx; map it to the
		// sentinel so callers can defer instead of failing hard.
		return "", ErrInsufficientFunds
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("custody: transfer status %d: %s", resp.StatusCode, body)
	}

	var out transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Reference == "" {
		return "", errors.New("custody: transfer succeeded without a reference")
	}
	return out.Reference, nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}
