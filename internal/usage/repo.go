package usage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("usage: record not found")

// Repo is the persistence contract for call duration records.
//
// Upsert is keyed by (call_id, pathway_id): repeated observations of the
// same call converge to a single record. Upsert never touches the charged
// flag; that column is owned by ClaimCharge.
type Repo interface {
	Upsert(ctx context.Context, r CallDurationRecord) error
	Get(ctx context.Context, callID, pathwayID string) (CallDurationRecord, error)
	GetByCallID(ctx context.Context, callID string) (CallDurationRecord, error)

	// ListActive returns records in non-terminal status (poll task input).
	ListActive(ctx context.Context) ([]CallDurationRecord, error)

	// ListUncharged returns records with charged=false and
	// additional_minutes > 0 (safety-net input).
	ListUncharged(ctx context.Context) ([]CallDurationRecord, error)

	// ClaimCharge atomically flips charged from false to true and reports
	// whether this caller won the flip. A false return with nil error means
	// another writer already charged the record.
	ClaimCharge(ctx context.Context, callID string) (bool, error)
}
