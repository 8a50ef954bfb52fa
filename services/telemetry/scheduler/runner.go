package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
	"github.com/multiversx/mx-chain-core-go/core/check"
	logger "github.com/multiversx/mx-chain-logger-go"
)

var log = logger.GetOrCreate("scheduler")

// AggregationLockName is the lease key guarding the aggregation-detection-publish cycle
const AggregationLockName = "aggregation-cycle"

// ArgsRunner defines the cycle runner arguments
type ArgsRunner struct {
	Storage            Storer
	Aggregator         Aggregator
	Detector           Detector
	Publisher          Publisher
	HolderID           string
	LeaseTTLSeconds    int64
	LeaseRenewInterval time.Duration
}

// runner executes one scheduling tick at a time: it competes for the aggregation lease and, on
// winning it, runs aggregation, detection and publishing as one unit. Redundant instances each
// run their own runner; the lease is the single mechanism preventing duplicate SCADA alerts.
type runner struct {
	storage            Storer
	aggregator         Aggregator
	detector           Detector
	publisher          Publisher
	holderID           string
	leaseTTLSeconds    int64
	leaseRenewInterval time.Duration
}

// NewRunner creates a new cycle runner instance
func NewRunner(args ArgsRunner) (*runner, error) {
	if check.IfNil(args.Storage) {
		return nil, errors.New("nil storage")
	}
	if check.IfNil(args.Aggregator) {
		return nil, errors.New("nil aggregator")
	}
	if check.IfNil(args.Detector) {
		return nil, errors.New("nil detector")
	}
	if check.IfNil(args.Publisher) {
		return nil, errors.New("nil publisher")
	}
	if len(args.HolderID) == 0 {
		return nil, errors.New("empty holder id")
	}
	if args.LeaseTTLSeconds <= 0 {
		return nil, errors.New("invalid lease ttl")
	}

	return &runner{
		storage:            args.Storage,
		aggregator:         args.Aggregator,
		detector:           args.Detector,
		publisher:          args.Publisher,
		holderID:           args.HolderID,
		leaseTTLSeconds:    args.LeaseTTLSeconds,
		leaseRenewInterval: args.LeaseRenewInterval,
	}, nil
}

// Process runs one scheduling tick. Not acquiring the lease is the normal outcome on all but one
// instance. A cycle aborted by a store failure simply ends this tick: the lease is released (or
// lapses) and the next tick starts a fresh, self-contained cycle.
func (r *runner) Process(ctx context.Context) {
	lease, acquired, err := r.storage.TryAcquireLease(ctx, AggregationLockName, r.holderID, r.leaseTTLSeconds)
	if err != nil {
		log.Warn("failed to acquire lease", "error", err)
		return
	}
	if !acquired {
		log.Trace("lease held by another instance, skipping tick")
		return
	}

	defer func() {
		releaseErr := r.storage.ReleaseLease(ctx, lease)
		if releaseErr != nil {
			log.Warn("failed to release lease, it will lapse after the ttl", "error", releaseErr)
		}
	}()

	// losing the lease cancels the in-flight cycle so another instance can take over cleanly
	cycleCtx, cancelCycle := context.WithCancel(ctx)
	defer cancelCycle()

	stopRenewing := r.startRenewLoop(cycleCtx, cancelCycle, lease)
	defer stopRenewing()

	r.runCycleBody(cycleCtx)
}

func (r *runner) runCycleBody(ctx context.Context) {
	cycleTimestamp := time.Now().Unix()

	summaries, err := r.aggregator.RunCycle(ctx, cycleTimestamp)
	if err != nil {
		log.Error("aggregation cycle failed", "cycleTimestamp", cycleTimestamp, "error", err)
		return
	}

	events, err := r.detector.Detect(ctx, summaries)
	if err != nil {
		log.Error("abnormality detection failed", "cycleTimestamp", cycleTimestamp, "error", err)
		return
	}

	if len(events) == 0 {
		log.Debug("cycle completed, no new abnormalities", "cycleTimestamp", cycleTimestamp)
		return
	}

	result, err := r.publisher.Publish(ctx, events)
	if err != nil {
		log.Error("publishing failed", "cycleTimestamp", cycleTimestamp, "error", err)
		return
	}

	log.Info("cycle completed",
		"cycleTimestamp", cycleTimestamp,
		"racks", len(summaries),
		"events", len(events),
		"delivered", len(result.Delivered),
		"failed", len(result.Failed))
}

// startRenewLoop keeps the lease alive while the cycle body runs. A failed renewal is treated as
// an implicit cancellation of the current cycle.
func (r *runner) startRenewLoop(ctx context.Context, cancelCycle func(), lease *core.SchedulerLease) func() {
	if r.leaseRenewInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)

		ticker := time.NewTicker(r.leaseRenewInterval)
		defer ticker.Stop()

		current := lease
		for {
			select {
			case <-ticker.C:
				renewed, err := r.storage.RenewLease(ctx, current, r.leaseTTLSeconds)
				if err != nil {
					log.Warn("lease renewal failed, cancelling current cycle", "error", err)
					cancelCycle()
					return
				}
				*lease = *renewed
				current = renewed
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

// IsInterfaceNil returns true if the value under the interface is nil
func (r *runner) IsInterfaceNil() bool {
	return r == nil
}
