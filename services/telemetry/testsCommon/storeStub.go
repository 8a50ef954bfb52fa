package testsCommon

import (
	"context"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

// StoreStub -
type StoreStub struct {
	SaveReadingHandler         func(ctx context.Context, reading core.TelemetryReading, recordedAt int64) error
	GetReadingsInRangeHandler  func(ctx context.Context, from int64, to int64) ([]core.TelemetryReading, error)
	GetKnownDevicesHandler     func(ctx context.Context) (map[string]map[string]int64, error)
	SaveRackSummaryHandler     func(ctx context.Context, summary core.RackHealthSummary) error
	GetRackSummaryHandler      func(ctx context.Context, rackID string) (*core.RackHealthSummary, error)
	GetAllRackSummariesHandler func(ctx context.Context) ([]core.RackHealthSummary, error)
	GetOpenConditionsHandler   func(ctx context.Context) ([]core.OpenCondition, error)
	UpsertOpenConditionHandler func(ctx context.Context, condition core.OpenCondition) error
	CloseConditionHandler      func(ctx context.Context, rackID string, deviceID string, kind string) error
	TryAcquireLeaseHandler     func(ctx context.Context, lockName string, holderID string, ttlSeconds int64) (*core.SchedulerLease, bool, error)
	RenewLeaseHandler          func(ctx context.Context, lease *core.SchedulerLease, ttlSeconds int64) (*core.SchedulerLease, error)
	ReleaseLeaseHandler        func(ctx context.Context, lease *core.SchedulerLease) error
	SaveEventsHandler          func(ctx context.Context, events []core.AbnormalityEvent) error
	GetRecentEventsHandler     func(ctx context.Context, limit int) ([]core.AbnormalityEvent, error)
	SaveFailedPublishHandler   func(ctx context.Context, failed core.FailedPublish) error
	GetFailedPublishesHandler  func(ctx context.Context, limit int) ([]core.FailedPublish, error)
	CloseHandler               func() error
}

// SaveReading -
func (stub *StoreStub) SaveReading(ctx context.Context, reading core.TelemetryReading, recordedAt int64) error {
	if stub.SaveReadingHandler != nil {
		return stub.SaveReadingHandler(ctx, reading, recordedAt)
	}

	return nil
}

// GetReadingsInRange -
func (stub *StoreStub) GetReadingsInRange(ctx context.Context, from int64, to int64) ([]core.TelemetryReading, error) {
	if stub.GetReadingsInRangeHandler != nil {
		return stub.GetReadingsInRangeHandler(ctx, from, to)
	}

	return make([]core.TelemetryReading, 0), nil
}

// GetKnownDevices -
func (stub *StoreStub) GetKnownDevices(ctx context.Context) (map[string]map[string]int64, error) {
	if stub.GetKnownDevicesHandler != nil {
		return stub.GetKnownDevicesHandler(ctx)
	}

	return make(map[string]map[string]int64), nil
}

// SaveRackSummary -
func (stub *StoreStub) SaveRackSummary(ctx context.Context, summary core.RackHealthSummary) error {
	if stub.SaveRackSummaryHandler != nil {
		return stub.SaveRackSummaryHandler(ctx, summary)
	}

	return nil
}

// GetRackSummary -
func (stub *StoreStub) GetRackSummary(ctx context.Context, rackID string) (*core.RackHealthSummary, error) {
	if stub.GetRackSummaryHandler != nil {
		return stub.GetRackSummaryHandler(ctx, rackID)
	}

	return &core.RackHealthSummary{}, nil
}

// GetAllRackSummaries -
func (stub *StoreStub) GetAllRackSummaries(ctx context.Context) ([]core.RackHealthSummary, error) {
	if stub.GetAllRackSummariesHandler != nil {
		return stub.GetAllRackSummariesHandler(ctx)
	}

	return make([]core.RackHealthSummary, 0), nil
}

// GetOpenConditions -
func (stub *StoreStub) GetOpenConditions(ctx context.Context) ([]core.OpenCondition, error) {
	if stub.GetOpenConditionsHandler != nil {
		return stub.GetOpenConditionsHandler(ctx)
	}

	return make([]core.OpenCondition, 0), nil
}

// UpsertOpenCondition -
func (stub *StoreStub) UpsertOpenCondition(ctx context.Context, condition core.OpenCondition) error {
	if stub.UpsertOpenConditionHandler != nil {
		return stub.UpsertOpenConditionHandler(ctx, condition)
	}

	return nil
}

// CloseCondition -
func (stub *StoreStub) CloseCondition(ctx context.Context, rackID string, deviceID string, kind string) error {
	if stub.CloseConditionHandler != nil {
		return stub.CloseConditionHandler(ctx, rackID, deviceID, kind)
	}

	return nil
}

// TryAcquireLease -
func (stub *StoreStub) TryAcquireLease(ctx context.Context, lockName string, holderID string, ttlSeconds int64) (*core.SchedulerLease, bool, error) {
	if stub.TryAcquireLeaseHandler != nil {
		return stub.TryAcquireLeaseHandler(ctx, lockName, holderID, ttlSeconds)
	}

	return &core.SchedulerLease{LockName: lockName, HolderID: holderID}, true, nil
}

// RenewLease -
func (stub *StoreStub) RenewLease(ctx context.Context, lease *core.SchedulerLease, ttlSeconds int64) (*core.SchedulerLease, error) {
	if stub.RenewLeaseHandler != nil {
		return stub.RenewLeaseHandler(ctx, lease, ttlSeconds)
	}

	return lease, nil
}

// ReleaseLease -
func (stub *StoreStub) ReleaseLease(ctx context.Context, lease *core.SchedulerLease) error {
	if stub.ReleaseLeaseHandler != nil {
		return stub.ReleaseLeaseHandler(ctx, lease)
	}

	return nil
}

// SaveEvents -
func (stub *StoreStub) SaveEvents(ctx context.Context, events []core.AbnormalityEvent) error {
	if stub.SaveEventsHandler != nil {
		return stub.SaveEventsHandler(ctx, events)
	}

	return nil
}

// GetRecentEvents -
func (stub *StoreStub) GetRecentEvents(ctx context.Context, limit int) ([]core.AbnormalityEvent, error) {
	if stub.GetRecentEventsHandler != nil {
		return stub.GetRecentEventsHandler(ctx, limit)
	}

	return make([]core.AbnormalityEvent, 0), nil
}

// SaveFailedPublish -
func (stub *StoreStub) SaveFailedPublish(ctx context.Context, failed core.FailedPublish) error {
	if stub.SaveFailedPublishHandler != nil {
		return stub.SaveFailedPublishHandler(ctx, failed)
	}

	return nil
}

// GetFailedPublishes -
func (stub *StoreStub) GetFailedPublishes(ctx context.Context, limit int) ([]core.FailedPublish, error) {
	if stub.GetFailedPublishesHandler != nil {
		return stub.GetFailedPublishesHandler(ctx, limit)
	}

	return make([]core.FailedPublish, 0), nil
}

// Close -
func (stub *StoreStub) Close() error {
	if stub.CloseHandler != nil {
		return stub.CloseHandler()
	}

	return nil
}

// IsInterfaceNil -
func (stub *StoreStub) IsInterfaceNil() bool {
	return stub == nil
}
