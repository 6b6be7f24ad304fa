package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ivr-billing/pkg/logger"
)

var (
	ErrNotFound             = errors.New("subscription: not found")
	ErrNoActiveSubscription = errors.New("subscription: no active subscription")
	ErrInvalidArgument      = errors.New("subscription: invalid argument")
)

// Repo is the persistence contract for subscription records.
//
// Supersede must be atomic: the status flip on prevID (skipped when empty)
// and the insert of r apply together or not at all, so a failure cannot
// leave the user with no record.
//
// DecrementPool must be atomic per record: it floors the pool at zero and
// returns the pool value observed before the decrement, so concurrent
// observers cannot both consume the same minutes.
type Repo interface {
	GetActiveByUser(ctx context.Context, userID string) (Record, error)
	Supersede(ctx context.Context, prevID string, r Record) error
	SetStatus(ctx context.Context, id string, status Status, now time.Time) error
	DecrementPool(ctx context.Context, id string, pool Pool, minutes int, now time.Time) (previous int, err error)
	ListExpiredActive(ctx context.Context, now time.Time) ([]Record, error)
}

// PlanRepo resolves plan definitions.
type PlanRepo interface {
	Get(ctx context.Context, planID string) (Plan, error)
}

// Service manages plan assignment, minute pools and expiry.
type Service struct {
	repo  Repo
	plans PlanRepo
	clock func() time.Time
}

func NewService(repo Repo, plans PlanRepo) *Service {
	return &Service{repo: repo, plans: plans, clock: time.Now}
}

// SetClock overrides the service clock. Intended for tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// Activate assigns a plan to a user. Any currently active record is
// superseded (flipped inactive), never deleted.
func (s *Service) Activate(ctx context.Context, userID, planID string) (Record, error) {
	if userID == "" || planID == "" {
		return Record{}, ErrInvalidArgument
	}
	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		return Record{}, err
	}

	now := s.clock().UTC()

	var prevID string
	if prev, err := s.repo.GetActiveByUser(ctx, userID); err == nil {
		prevID = prev.ID
	} else if !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}

	rec := Record{
		ID:                       uuid.NewString(),
		UserID:                   userID,
		PlanID:                   plan.ID,
		Status:                   StatusActive,
		RemainingBatchMinutes:    plan.BatchMinutes,
		RemainingSingleMinutes:   plan.SingleMinutes,
		RemainingTransferMinutes: plan.TransferMinutes,
		StartedAt:                now,
		AutoRenew:                false,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if plan.Duration > 0 {
		exp := now.Add(plan.Duration)
		rec.ExpiresAt = &exp
	}
	if err := s.repo.Supersede(ctx, prevID, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// RequireActive is the guard wrapped around any action that needs an active
// subscription. Expiry is checked lazily: if the record's expiry has passed,
// the guard flips it inactive synchronously before refusing.
func (s *Service) RequireActive(ctx context.Context, userID string) (Record, error) {
	if userID == "" {
		return Record{}, ErrInvalidArgument
	}
	rec, err := s.repo.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrNoActiveSubscription
		}
		return Record{}, err
	}

	now := s.clock().UTC()
	if rec.Expired(now) {
		if err := s.repo.SetStatus(ctx, rec.ID, StatusInactive, now); err != nil {
			return Record{}, err
		}
		return Record{}, ErrNoActiveSubscription
	}
	return rec, nil
}

// ConsumeMinutes subtracts minutes from one of the user's pools.
// The pool never goes negative: when minutes exceed what remains, the pool
// is zeroed and the deficit is returned as overage minutes.
func (s *Service) ConsumeMinutes(ctx context.Context, userID string, pool Pool, minutes int) (overage int, err error) {
	if minutes < 0 {
		return 0, ErrInvalidArgument
	}
	if minutes == 0 {
		return 0, nil
	}
	rec, err := s.RequireActive(ctx, userID)
	if err != nil {
		return 0, err
	}

	prev, err := s.repo.DecrementPool(ctx, rec.ID, pool, minutes, s.clock().UTC())
	if err != nil {
		return 0, err
	}
	if minutes > prev {
		return minutes - prev, nil
	}
	return 0, nil
}

// Deactivate flips the user's active record inactive. Used when an overage
// charge cannot be completed (insufficient balance across all accounts).
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	rec, err := s.repo.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.repo.SetStatus(ctx, rec.ID, StatusInactive, s.clock().UTC())
}

// ExpireDue flips every active record whose expiry has passed. Scheduled
// daily; the RequireActive guard also enforces expiry lazily between runs.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := s.clock().UTC()
	due, err := s.repo.ListExpiredActive(ctx, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range due {
		if err := s.repo.SetStatus(ctx, rec.ID, StatusInactive, now); err != nil {
			logger.From(ctx).Error("expiry flip failed", "subscription_id", rec.ID, "err", err)
			continue
		}
		n++
	}
	return n, nil
}
