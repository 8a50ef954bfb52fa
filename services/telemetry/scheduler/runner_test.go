package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/testsCommon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createRunnerArgs() ArgsRunner {
	return ArgsRunner{
		Storage:            &testsCommon.StoreStub{},
		Aggregator:         &testsCommon.AggregatorStub{},
		Detector:           &testsCommon.DetectorStub{},
		Publisher:          &testsCommon.PublisherStub{},
		HolderID:           "instance-1",
		LeaseTTLSeconds:    30,
		LeaseRenewInterval: 0,
	}
}

func TestNewRunner(t *testing.T) {
	t.Parallel()

	t.Run("nil storage should error", func(t *testing.T) {
		args := createRunnerArgs()
		args.Storage = nil

		instance, err := NewRunner(args)
		assert.Nil(t, instance)
		assert.True(t, instance.IsInterfaceNil())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "nil storage")
	})
	t.Run("nil aggregator should error", func(t *testing.T) {
		args := createRunnerArgs()
		args.Aggregator = nil

		instance, err := NewRunner(args)
		assert.Nil(t, instance)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "nil aggregator")
	})
	t.Run("nil detector should error", func(t *testing.T) {
		args := createRunnerArgs()
		args.Detector = nil

		instance, err := NewRunner(args)
		assert.Nil(t, instance)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "nil detector")
	})
	t.Run("nil publisher should error", func(t *testing.T) {
		args := createRunnerArgs()
		args.Publisher = nil

		instance, err := NewRunner(args)
		assert.Nil(t, instance)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "nil publisher")
	})
	t.Run("empty holder id should error", func(t *testing.T) {
		args := createRunnerArgs()
		args.HolderID = ""

		instance, err := NewRunner(args)
		assert.Nil(t, instance)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "empty holder id")
	})
	t.Run("invalid lease ttl should error", func(t *testing.T) {
		args := createRunnerArgs()
		args.LeaseTTLSeconds = 0

		instance, err := NewRunner(args)
		assert.Nil(t, instance)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid lease ttl")
	})
	t.Run("should work", func(t *testing.T) {
		instance, err := NewRunner(createRunnerArgs())

		assert.NotNil(t, instance)
		assert.False(t, instance.IsInterfaceNil())
		assert.Nil(t, err)
	})
}

func TestRunner_ProcessSkipsWhenLeaseNotAcquired(t *testing.T) {
	t.Parallel()

	aggregationRan := false
	args := createRunnerArgs()
	args.Storage = &testsCommon.StoreStub{
		TryAcquireLeaseHandler: func(_ context.Context, _ string, _ string, _ int64) (*core.SchedulerLease, bool, error) {
			return nil, false, nil
		},
	}
	args.Aggregator = &testsCommon.AggregatorStub{
		RunCycleHandler: func(_ context.Context, _ int64) ([]core.RackHealthSummary, error) {
			aggregationRan = true
			return nil, nil
		},
	}

	instance, _ := NewRunner(args)
	instance.Process(context.Background())

	assert.False(t, aggregationRan)
}

func TestRunner_ProcessRunsFullPipelineAndReleasesLease(t *testing.T) {
	t.Parallel()

	calls := make([]string, 0)
	summaries := []core.RackHealthSummary{{RackID: "rack-1"}}
	events := []core.AbnormalityEvent{{EventID: "ev-1", RackID: "rack-1"}}

	args := createRunnerArgs()
	args.Storage = &testsCommon.StoreStub{
		TryAcquireLeaseHandler: func(_ context.Context, lockName string, holderID string, _ int64) (*core.SchedulerLease, bool, error) {
			assert.Equal(t, AggregationLockName, lockName)
			assert.Equal(t, "instance-1", holderID)
			return &core.SchedulerLease{LockName: lockName, HolderID: holderID}, true, nil
		},
		ReleaseLeaseHandler: func(_ context.Context, lease *core.SchedulerLease) error {
			calls = append(calls, "release")
			assert.Equal(t, "instance-1", lease.HolderID)
			return nil
		},
	}
	args.Aggregator = &testsCommon.AggregatorStub{
		RunCycleHandler: func(_ context.Context, _ int64) ([]core.RackHealthSummary, error) {
			calls = append(calls, "aggregate")
			return summaries, nil
		},
	}
	args.Detector = &testsCommon.DetectorStub{
		DetectHandler: func(_ context.Context, provided []core.RackHealthSummary) ([]core.AbnormalityEvent, error) {
			calls = append(calls, "detect")
			assert.Equal(t, summaries, provided)
			return events, nil
		},
	}
	args.Publisher = &testsCommon.PublisherStub{
		PublishHandler: func(_ context.Context, provided []core.AbnormalityEvent) (core.PublishResult, error) {
			calls = append(calls, "publish")
			assert.Equal(t, events, provided)
			return core.PublishResult{Delivered: []core.EventDelivery{{EventID: "ev-1"}}}, nil
		},
	}

	instance, _ := NewRunner(args)
	instance.Process(context.Background())

	require.Equal(t, []string{"aggregate", "detect", "publish", "release"}, calls)
}

func TestRunner_ProcessSkipsPublishingWhenNoEvents(t *testing.T) {
	t.Parallel()

	publishCalled := false
	args := createRunnerArgs()
	args.Publisher = &testsCommon.PublisherStub{
		PublishHandler: func(_ context.Context, _ []core.AbnormalityEvent) (core.PublishResult, error) {
			publishCalled = true
			return core.PublishResult{}, nil
		},
	}

	instance, _ := NewRunner(args)
	instance.Process(context.Background())

	assert.False(t, publishCalled)
}

func TestRunner_ProcessAbortsCycleOnAggregationFailure(t *testing.T) {
	t.Parallel()

	detectCalled := false
	leaseReleased := false
	args := createRunnerArgs()
	args.Storage = &testsCommon.StoreStub{
		ReleaseLeaseHandler: func(_ context.Context, _ *core.SchedulerLease) error {
			leaseReleased = true
			return nil
		},
	}
	args.Aggregator = &testsCommon.AggregatorStub{
		RunCycleHandler: func(_ context.Context, _ int64) ([]core.RackHealthSummary, error) {
			return nil, errors.New("store down")
		},
	}
	args.Detector = &testsCommon.DetectorStub{
		DetectHandler: func(_ context.Context, _ []core.RackHealthSummary) ([]core.AbnormalityEvent, error) {
			detectCalled = true
			return nil, nil
		},
	}

	instance, _ := NewRunner(args)
	instance.Process(context.Background())

	assert.False(t, detectCalled)
	assert.True(t, leaseReleased)
}

func TestRunner_FailedRenewalCancelsCycle(t *testing.T) {
	t.Parallel()

	args := createRunnerArgs()
	args.LeaseRenewInterval = 10 * time.Millisecond
	args.Storage = &testsCommon.StoreStub{
		RenewLeaseHandler: func(_ context.Context, _ *core.SchedulerLease, _ int64) (*core.SchedulerLease, error) {
			return nil, core.ErrLeaseNotHeld
		},
	}

	cycleCancelled := make(chan struct{})
	args.Aggregator = &testsCommon.AggregatorStub{
		RunCycleHandler: func(ctx context.Context, _ int64) ([]core.RackHealthSummary, error) {
			select {
			case <-ctx.Done():
				close(cycleCancelled)
				return nil, ctx.Err()
			case <-time.After(time.Second):
				return nil, errors.New("cycle was not cancelled")
			}
		},
	}

	instance, _ := NewRunner(args)
	instance.Process(context.Background())

	select {
	case <-cycleCancelled:
	default:
		assert.Fail(t, "expected the in-flight cycle to be cancelled after a failed renewal")
	}
}

func TestRunner_RenewLoopKeepsLeaseFresh(t *testing.T) {
	t.Parallel()

	renewals := 0
	args := createRunnerArgs()
	args.LeaseRenewInterval = 5 * time.Millisecond
	args.Storage = &testsCommon.StoreStub{
		RenewLeaseHandler: func(_ context.Context, lease *core.SchedulerLease, ttlSeconds int64) (*core.SchedulerLease, error) {
			renewals++
			renewed := *lease
			renewed.ExpiresAt = time.Now().Unix() + ttlSeconds
			return &renewed, nil
		},
	}
	args.Aggregator = &testsCommon.AggregatorStub{
		RunCycleHandler: func(_ context.Context, _ int64) ([]core.RackHealthSummary, error) {
			time.Sleep(50 * time.Millisecond)
			return nil, nil
		},
	}

	instance, _ := NewRunner(args)
	instance.Process(context.Background())

	assert.Greater(t, renewals, 0)
}
