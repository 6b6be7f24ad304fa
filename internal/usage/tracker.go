package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ivr-billing/internal/callprovider"
	"ivr-billing/internal/pricing"
	"ivr-billing/internal/subscription"
	"ivr-billing/pkg/logger"
)

var ErrInvalidObservation = errors.New("usage: invalid observation")

// Observation is one provider-reported view of a call, delivered by the
// poll task or the call-ended webhook.
type Observation struct {
	CallID    string
	PathwayID string
	UserID    string

	// Pool is which subscription minute pool the call draws from.
	// Defaults to the single-call pool.
	Pool subscription.Pool

	Status            callprovider.Status
	StartedAt         *time.Time
	EndAt             *time.Time
	CallLengthSeconds int
}

// Tracker converts call observations into pool consumption and overage.
//
// Concurrency note: Observe is not self-serializing. Callers (the trigger
// orchestrator) hold the per-call lock around the observe+charge pipeline so
// two triggers cannot both consume pool minutes for the same call.
type Tracker struct {
	repo     Repo
	subs     *subscription.Service
	provider callprovider.Client
	clock    func() time.Time
}

func NewTracker(repo Repo, subs *subscription.Service, provider callprovider.Client) *Tracker {
	return &Tracker{repo: repo, subs: subs, provider: provider, clock: time.Now}
}

// SetClock overrides the tracker clock. Intended for tests.
func (t *Tracker) SetClock(clock func() time.Time) { t.clock = clock }

// Observe applies one provider observation to the call's duration record.
//
// Semantics:
//   - in-progress call at or past its remaining pool minutes: the call is
//     force-stopped at the provider, the pool is zeroed and the full deficit
//     (elapsed minus the pool that was left) becomes additional minutes;
//   - completed call: the pool is decremented by the call's duration, any
//     excess becomes additional minutes;
//   - a record that already reached a terminal status is returned unchanged,
//     so re-observation never double-consumes minutes and a call terminated
//     by the force-stop keeps its elapsed-to-termination duration.
func (t *Tracker) Observe(ctx context.Context, obs Observation) (CallDurationRecord, error) {
	if obs.CallID == "" || obs.UserID == "" {
		return CallDurationRecord{}, ErrInvalidObservation
	}
	if obs.Pool == "" {
		obs.Pool = subscription.PoolSingle
	}

	now := t.clock().UTC()

	existing, err := t.repo.Get(ctx, obs.CallID, obs.PathwayID)
	found := !errors.Is(err, ErrNotFound)
	if err != nil && found {
		return CallDurationRecord{}, err
	}
	if found && existing.Settled() {
		return existing, nil
	}

	rec := CallDurationRecord{
		CallID:            obs.CallID,
		PathwayID:         obs.PathwayID,
		UserID:            obs.UserID,
		Status:            obs.Status,
		Pool:              obs.Pool,
		StartedAt:         obs.StartedAt,
		AdditionalMinutes: decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if found {
		rec.Pool = existing.Pool
		rec.CreatedAt = existing.CreatedAt
		rec.AdditionalMinutes = existing.AdditionalMinutes
		if rec.StartedAt == nil {
			rec.StartedAt = existing.StartedAt
		}
	}

	switch obs.Status {
	case callprovider.StatusNew, callprovider.StatusQueued:
		// Nothing billable yet.

	case callprovider.StatusStarted:
		if rec.StartedAt == nil {
			return CallDurationRecord{}, fmt.Errorf("%w: started call without start time", ErrInvalidObservation)
		}
		elapsedSec := int(now.Sub(*rec.StartedAt) / time.Second)
		elapsedMin := pricing.BillableMinutes(elapsedSec)
		rec.DurationSeconds = elapsedSec

		remaining, err := t.remainingMinutes(ctx, obs.UserID, rec.Pool)
		if err != nil {
			return CallDurationRecord{}, err
		}
		if elapsedMin >= remaining {
			// Over budget while still running: cut the call off first, then
			// settle the books. If the stop fails the whole observation is
			// retried on the next trigger.
			if err := t.provider.StopCall(ctx, obs.CallID); err != nil {
				return CallDurationRecord{}, fmt.Errorf("usage: force-stop failed: %w", err)
			}
			overage, err := t.consume(ctx, obs.UserID, rec.Pool, elapsedMin)
			if err != nil {
				return CallDurationRecord{}, err
			}
			rec.Status = callprovider.StatusTerminated
			ended := now
			rec.EndedAt = &ended
			rec.AdditionalMinutes = decimal.NewFromInt(int64(overage))
		}

	case callprovider.StatusComplete, callprovider.StatusTerminated:
		durationSec := obs.CallLengthSeconds
		if obs.StartedAt != nil && obs.EndAt != nil {
			durationSec = int(obs.EndAt.Sub(*obs.StartedAt) / time.Second)
		}
		rec.DurationSeconds = durationSec
		rec.EndedAt = obs.EndAt
		if rec.EndedAt == nil {
			ended := now
			rec.EndedAt = &ended
		}

		overage, err := t.consume(ctx, obs.UserID, rec.Pool, pricing.BillableMinutes(durationSec))
		if err != nil {
			return CallDurationRecord{}, err
		}
		rec.AdditionalMinutes = decimal.NewFromInt(int64(overage))

	default:
		return CallDurationRecord{}, fmt.Errorf("%w: unknown status %q", ErrInvalidObservation, obs.Status)
	}

	if err := t.repo.Upsert(ctx, rec); err != nil {
		return CallDurationRecord{}, err
	}
	return rec, nil
}

func (t *Tracker) remainingMinutes(ctx context.Context, userID string, pool subscription.Pool) (int, error) {
	sub, err := t.subs.RequireActive(ctx, userID)
	if err != nil {
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			// No pool left to draw from; everything counts as overage.
			return 0, nil
		}
		return 0, err
	}
	switch pool {
	case subscription.PoolBatch:
		return sub.RemainingBatchMinutes, nil
	case subscription.PoolTransfer:
		return sub.RemainingTransferMinutes, nil
	default:
		return sub.RemainingSingleMinutes, nil
	}
}

// consume decrements the pool and returns the overage. A user without an
// active subscription (deactivated mid-call, expired) has no minutes, so
// the full amount is overage.
func (t *Tracker) consume(ctx context.Context, userID string, pool subscription.Pool, minutes int) (int, error) {
	overage, err := t.subs.ConsumeMinutes(ctx, userID, pool, minutes)
	if err != nil {
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			logger.From(ctx).Warn("usage observed without active subscription; whole duration is overage",
				"user_id", userID, "minutes", minutes)
			return minutes, nil
		}
		return 0, err
	}
	return overage, nil
}
