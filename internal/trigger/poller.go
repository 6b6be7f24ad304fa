package trigger

import (
	"context"
	"errors"

	"ivr-billing/internal/callprovider"
	"ivr-billing/internal/usage"
	"ivr-billing/pkg/logger"
)

// Poller is the periodic trigger: every cycle it refreshes provider state
// for every non-terminal call and pushes the result through the pipeline.
type Poller struct {
	records  usage.Repo
	provider callprovider.Client
	pipeline *Pipeline
}

func NewPoller(records usage.Repo, provider callprovider.Client, pipeline *Pipeline) *Poller {
	return &Poller{records: records, provider: provider, pipeline: pipeline}
}

// RunOnce processes one poll cycle. A failure on one call is logged and the
// batch keeps going; the next cycle picks the call up again.
func (p *Poller) RunOnce(ctx context.Context) error {
	active, err := p.records.ListActive(ctx)
	if err != nil {
		return err
	}

	log := logger.From(ctx)
	for _, rec := range active {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.pollOne(ctx, rec); err != nil {
			log.Error("poll cycle: call processing failed", "call_id", rec.CallID, "err", err)
		}
	}
	return nil
}

func (p *Poller) pollOne(ctx context.Context, rec usage.CallDurationRecord) error {
	info, err := p.provider.GetCall(ctx, rec.CallID)
	if err != nil {
		if errors.Is(err, callprovider.ErrCallNotFound) {
			// The provider no longer knows the call. Leave the record for
			// manual review rather than guessing a duration.
			logger.From(ctx).Warn("provider lost track of call", "call_id", rec.CallID)
			return nil
		}
		return err
	}

	obs := usage.Observation{
		CallID:            rec.CallID,
		PathwayID:         rec.PathwayID,
		UserID:            rec.UserID,
		Pool:              rec.Pool,
		Status:            info.QueueStatus,
		StartedAt:         info.StartedAt,
		EndAt:             info.EndAt,
		CallLengthSeconds: info.CallLengthSeconds,
	}
	_, err = p.pipeline.Process(ctx, obs)
	return err
}
