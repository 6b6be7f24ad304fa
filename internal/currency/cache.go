package currency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// PriceCache stores spot prices with a TTL.
//
// Implementations keep two copies: a fresh entry that expires after the TTL
// and a last-known entry that never expires. The last-known copy backs the
// stale-but-available fallback used when the price API is down.
type PriceCache interface {
	Get(ctx context.Context, cur Currency) (decimal.Decimal, bool, error)
	GetStale(ctx context.Context, cur Currency) (decimal.Decimal, bool, error)
	Set(ctx context.Context, cur Currency, price decimal.Decimal, ttl time.Duration) error
}

// --- Redis implementation ---

type RedisPriceCache struct {
	rdb *redis.Client
}

func NewRedisPriceCache(rdb *redis.Client) *RedisPriceCache {
	return &RedisPriceCache{rdb: rdb}
}

func freshKey(cur Currency) string { return cur.String() + "_price" }
func staleKey(cur Currency) string { return cur.String() + "_price_last" }

func (c *RedisPriceCache) Get(ctx context.Context, cur Currency) (decimal.Decimal, bool, error) {
	return c.get(ctx, freshKey(cur))
}

func (c *RedisPriceCache) GetStale(ctx context.Context, cur Currency) (decimal.Decimal, bool, error) {
	return c.get(ctx, staleKey(cur))
}

func (c *RedisPriceCache) get(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false, err
	}
	return d, true, nil
}

func (c *RedisPriceCache) Set(ctx context.Context, cur Currency, price decimal.Decimal, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, freshKey(cur), price.String(), ttl).Err(); err != nil {
		return err
	}
	// Last-known copy has no TTL.
	return c.rdb.Set(ctx, staleKey(cur), price.String(), 0).Err()
}

// --- Memory implementation (tests) ---

type memoryEntry struct {
	price     decimal.Decimal
	expiresAt time.Time
}

// MemoryPriceCache is an in-memory PriceCache useful for tests.
type MemoryPriceCache struct {
	mu      sync.Mutex
	entries map[Currency]memoryEntry
	clock   func() time.Time
}

func NewMemoryPriceCache() *MemoryPriceCache {
	return &MemoryPriceCache{entries: map[Currency]memoryEntry{}, clock: time.Now}
}

// SetClock overrides the cache clock for TTL tests.
func (c *MemoryPriceCache) SetClock(clock func() time.Time) { c.clock = clock }

func (c *MemoryPriceCache) Get(ctx context.Context, cur Currency) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cur]
	if !ok || c.clock().After(e.expiresAt) {
		return decimal.Zero, false, nil
	}
	return e.price, true, nil
}

func (c *MemoryPriceCache) GetStale(ctx context.Context, cur Currency) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cur]
	if !ok {
		return decimal.Zero, false, nil
	}
	return e.price, true, nil
}

func (c *MemoryPriceCache) Set(ctx context.Context, cur Currency, price decimal.Decimal, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cur] = memoryEntry{price: price, expiresAt: c.clock().Add(ttl)}
	return nil
}
