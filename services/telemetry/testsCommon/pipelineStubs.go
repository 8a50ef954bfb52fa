package testsCommon

import (
	"context"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

// AggregatorStub -
type AggregatorStub struct {
	RunCycleHandler func(ctx context.Context, cycleTimestamp int64) ([]core.RackHealthSummary, error)
}

// RunCycle -
func (stub *AggregatorStub) RunCycle(ctx context.Context, cycleTimestamp int64) ([]core.RackHealthSummary, error) {
	if stub.RunCycleHandler != nil {
		return stub.RunCycleHandler(ctx, cycleTimestamp)
	}

	return make([]core.RackHealthSummary, 0), nil
}

// IsInterfaceNil -
func (stub *AggregatorStub) IsInterfaceNil() bool {
	return stub == nil
}

// DetectorStub -
type DetectorStub struct {
	DetectHandler func(ctx context.Context, summaries []core.RackHealthSummary) ([]core.AbnormalityEvent, error)
}

// Detect -
func (stub *DetectorStub) Detect(ctx context.Context, summaries []core.RackHealthSummary) ([]core.AbnormalityEvent, error) {
	if stub.DetectHandler != nil {
		return stub.DetectHandler(ctx, summaries)
	}

	return make([]core.AbnormalityEvent, 0), nil
}

// IsInterfaceNil -
func (stub *DetectorStub) IsInterfaceNil() bool {
	return stub == nil
}

// PublisherStub -
type PublisherStub struct {
	PublishHandler func(ctx context.Context, events []core.AbnormalityEvent) (core.PublishResult, error)
}

// Publish -
func (stub *PublisherStub) Publish(ctx context.Context, events []core.AbnormalityEvent) (core.PublishResult, error) {
	if stub.PublishHandler != nil {
		return stub.PublishHandler(ctx, events)
	}

	return core.PublishResult{}, nil
}

// IsInterfaceNil -
func (stub *PublisherStub) IsInterfaceNil() bool {
	return stub == nil
}

// IngestorStub -
type IngestorStub struct {
	SubmitHandler func(ctx context.Context, reading core.TelemetryReading) error
}

// Submit -
func (stub *IngestorStub) Submit(ctx context.Context, reading core.TelemetryReading) error {
	if stub.SubmitHandler != nil {
		return stub.SubmitHandler(ctx, reading)
	}

	return nil
}

// IsInterfaceNil -
func (stub *IngestorStub) IsInterfaceNil() bool {
	return stub == nil
}
