package trigger

import (
	"context"

	"ivr-billing/internal/billing"
	"ivr-billing/internal/usage"
	"ivr-billing/pkg/logger"
)

// SafetyNet is the scheduled sweep trigger: it picks up settled records that
// still carry unbilled overage (deferred on insufficient balance, or dropped
// by a crashed poll/webhook) and retries the charge.
type SafetyNet struct {
	records  usage.Repo
	pipeline *Pipeline
}

func NewSafetyNet(records usage.Repo, pipeline *Pipeline) *SafetyNet {
	return &SafetyNet{records: records, pipeline: pipeline}
}

// RunOnce retries every uncharged overage record. Per-record failures are
// logged and the sweep continues.
func (s *SafetyNet) RunOnce(ctx context.Context) error {
	pending, err := s.records.ListUncharged(ctx)
	if err != nil {
		return err
	}

	log := logger.From(ctx)
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := s.pipeline.Charge(ctx, rec.CallID)
		if err != nil {
			log.Error("safety net: charge retry failed", "call_id", rec.CallID, "err", err)
			continue
		}
		if outcome == billing.OutcomeInsufficientBalance {
			log.Info("safety net: charge still deferred on balance", "call_id", rec.CallID)
		}
	}
	return nil
}
