package trigger

import (
	"context"
	"errors"
	"fmt"

	"ivr-billing/internal/billing"
	"ivr-billing/internal/usage"
	"ivr-billing/pkg/logger"
)

// Pipeline runs the observe-then-charge sequence for one call under the
// per-call lock. All three triggers (poll task, webhook, safety net) go
// through here, so only one of them works a given call at a time.
type Pipeline struct {
	tracker *usage.Tracker
	engine  *billing.Engine
	locker  billing.Locker
}

func NewPipeline(tracker *usage.Tracker, engine *billing.Engine, locker billing.Locker) *Pipeline {
	return &Pipeline{tracker: tracker, engine: engine, locker: locker}
}

// Process applies one observation and charges any resulting overage.
// ErrLockHeld is not an error to the caller: another trigger owns the call
// right now. The skip is reported as such because the holder may still fail;
// the record stays visible to the safety net either way.
func (p *Pipeline) Process(ctx context.Context, obs usage.Observation) (billing.Outcome, error) {
	release, err := p.locker.Acquire(ctx, obs.CallID)
	if err != nil {
		if errors.Is(err, billing.ErrLockHeld) {
			logger.From(ctx).Debug("call locked by another trigger; skipping", "call_id", obs.CallID)
			return billing.OutcomeSkipped, nil
		}
		return billing.OutcomeError, err
	}
	defer release()

	rec, err := p.tracker.Observe(ctx, obs)
	if err != nil {
		return billing.OutcomeError, fmt.Errorf("trigger: observe: %w", err)
	}
	if !rec.NeedsCharge() {
		if rec.Charged {
			return billing.OutcomeAlreadyCharged, nil
		}
		return billing.OutcomeNoOverage, nil
	}
	return p.engine.ChargeOverage(ctx, rec.CallID)
}

// Charge retries billing on an already-settled record without a fresh
// observation. Used by the safety net.
func (p *Pipeline) Charge(ctx context.Context, callID string) (billing.Outcome, error) {
	release, err := p.locker.Acquire(ctx, callID)
	if err != nil {
		if errors.Is(err, billing.ErrLockHeld) {
			return billing.OutcomeSkipped, nil
		}
		return billing.OutcomeError, err
	}
	defer release()

	return p.engine.ChargeOverage(ctx, callID)
}
