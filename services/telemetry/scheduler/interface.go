package scheduler

import (
	"context"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

// Aggregator defines the aggregation engine operations used by the runner
type Aggregator interface {
	// RunCycle computes and durably writes one RackHealthSummary per rack
	RunCycle(ctx context.Context, cycleTimestamp int64) ([]core.RackHealthSummary, error)

	IsInterfaceNil() bool
}

// Detector defines the abnormality detector operations used by the runner
type Detector interface {
	// Detect evaluates the rule set over the summaries and returns the newly emitted events
	Detect(ctx context.Context, summaries []core.RackHealthSummary) ([]core.AbnormalityEvent, error)

	IsInterfaceNil() bool
}

// Publisher defines the SCADA publisher operations used by the runner
type Publisher interface {
	// Publish delivers each event independently and reports the per-event outcome
	Publish(ctx context.Context, events []core.AbnormalityEvent) (core.PublishResult, error)

	IsInterfaceNil() bool
}

// Storer defines the lease operations needed by the runner
type Storer interface {
	// TryAcquireLease attempts a conditional write on the lease row
	TryAcquireLease(ctx context.Context, lockName string, holderID string, ttlSeconds int64) (*core.SchedulerLease, bool, error)

	// RenewLease extends a held lease, erroring with core.ErrLeaseNotHeld if it was lost
	RenewLease(ctx context.Context, lease *core.SchedulerLease, ttlSeconds int64) (*core.SchedulerLease, error)

	// ReleaseLease drops the lease row if still owned by the holder
	ReleaseLease(ctx context.Context, lease *core.SchedulerLease) error

	IsInterfaceNil() bool
}
