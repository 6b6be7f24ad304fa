package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"ivr-billing/internal/config"
	"ivr-billing/pkg/logger"
)

var (
	// ErrRateLimited marks an HTTP 429 from the price API; it is the only
	// error class worth retrying with backoff.
	ErrRateLimited = errors.New("currency: price api rate limited")

	// ErrPriceUnavailable means retries were exhausted and no cached copy
	// exists at all.
	ErrPriceUnavailable = errors.New("currency: price unavailable")
)

// PriceFetcher fetches a spot price in USD for a currency.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, cur Currency) (decimal.Decimal, error)
}

// HTTPPriceClient talks to the external rate API:
// GET {base}/rate/{SYMBOL}?basePair=USD -> {"value": "..."}
type HTTPPriceClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPPriceClient(cfg config.PriceAPIConfig) *HTTPPriceClient {
	return &HTTPPriceClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type rateResponse struct {
	Value decimal.Decimal `json:"value"`
}

func (c *HTTPPriceClient) FetchPrice(ctx context.Context, cur Currency) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/rate/%s?basePair=USD", c.baseURL, cur)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return decimal.Zero, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("currency: price api status %d: %s", resp.StatusCode, body)
	}

	var out rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, err
	}
	if out.Value.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("currency: non-positive price for %s", cur)
	}
	return out.Value, nil
}

// RateService resolves spot prices with a short-lived shared cache.
//
// Cache policy: prices are not per-user-sensitive; a single cached copy is
// reused across all users for up to the TTL. If the API stays rate-limited
// through all retry attempts, the last cached price is served even when
// logically expired, so billing does not stall during provider outages.
type RateService struct {
	fetcher PriceFetcher
	cache   PriceCache
	ttl     time.Duration

	// retry tuning, injectable for tests
	initialBackoff time.Duration
	maxAttempts    uint64
}

func NewRateService(fetcher PriceFetcher, cache PriceCache, ttl time.Duration) *RateService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RateService{
		fetcher:        fetcher,
		cache:          cache,
		ttl:            ttl,
		initialBackoff: time.Second,
		maxAttempts:    3,
	}
}

// SetRetry overrides retry tuning. Intended for tests.
func (s *RateService) SetRetry(initial time.Duration, attempts uint64) {
	s.initialBackoff = initial
	s.maxAttempts = attempts
}

// Price returns the USD spot price for cur.
func (s *RateService) Price(ctx context.Context, cur Currency) (decimal.Decimal, error) {
	if _, err := Parse(cur.String()); err != nil {
		return decimal.Zero, err
	}

	if p, ok, err := s.cache.Get(ctx, cur); err == nil && ok {
		return p, nil
	} else if err != nil {
		logger.From(ctx).Warn("price cache read failed", "currency", cur.String(), "err", err)
	}

	p, err := s.fetchWithRetry(ctx, cur)
	if err != nil {
		if !errors.Is(err, ErrRateLimited) && !errors.Is(err, context.DeadlineExceeded) {
			// Non-transient failures propagate immediately.
			return decimal.Zero, err
		}
		// Stale-but-available: any cached copy beats stalling billing.
		if stale, ok, serr := s.cache.GetStale(ctx, cur); serr == nil && ok {
			logger.From(ctx).Warn("serving stale price after retry exhaustion", "currency", cur.String())
			return stale, nil
		}
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceUnavailable, cur)
	}

	if err := s.cache.Set(ctx, cur, p, s.ttl); err != nil {
		logger.From(ctx).Warn("price cache write failed", "currency", cur.String(), "err", err)
	}
	return p, nil
}

func (s *RateService) fetchWithRetry(ctx context.Context, cur Currency) (decimal.Decimal, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	var out decimal.Decimal
	op := func() error {
		p, err := s.fetcher.FetchPrice(ctx, cur)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		out = p
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, s.maxAttempts-1), ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return decimal.Zero, perm.Unwrap()
		}
		return decimal.Zero, err
	}
	return out, nil
}
