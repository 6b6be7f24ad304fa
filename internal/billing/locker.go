package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ivr-billing/pkg/utils"
)

// ErrLockHeld means another trigger currently owns the call's critical
// section. Callers back off; the other holder is doing the same work.
var ErrLockHeld = errors.New("billing: charge lock held")

// Locker serializes the read-charged / debit / flip-charged sequence per
// call id across the three triggers (poll task, webhook, safety net).
type Locker interface {
	// Acquire returns a release func on success, ErrLockHeld if the lock
	// is owned elsewhere.
	Acquire(ctx context.Context, callID string) (release func(), err error)
}

// RedisLocker implements Locker on a shared Redis instance, so the critical
// section holds across processes. The TTL bounds lock leakage on crash.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func lockKey(callID string) string { return "charge_lock:" + callID }

func (l *RedisLocker) Acquire(ctx context.Context, callID string) (func(), error) {
	token := uuid.NewString()
	ok, err := utils.AcquireMutex(ctx, l.rdb, lockKey(callID), token, l.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		// Release on a fresh context: the caller's may already be done.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = utils.ReleaseMutex(rctx, l.rdb, lockKey(callID), token)
	}, nil
}

// MemoryLocker is an in-process Locker for tests and single-node runs.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: map[string]struct{}{}}
}

func (l *MemoryLocker) Acquire(ctx context.Context, callID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[callID]; held {
		return nil, ErrLockHeld
	}
	l.locks[callID] = struct{}{}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locks, callID)
	}, nil
}
