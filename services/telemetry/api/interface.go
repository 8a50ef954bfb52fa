package api

import (
	"context"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

// Ingestor defines the telemetry submission operations used by the server
type Ingestor interface {
	// Submit validates and durably persists one reading, a nil return is the acknowledgment
	Submit(ctx context.Context, reading core.TelemetryReading) error

	IsInterfaceNil() bool
}

// Storage defines the read-side store operations used by the operator endpoints
type Storage interface {
	// GetAllRackSummaries returns the latest summary of every rack
	GetAllRackSummaries(ctx context.Context) ([]core.RackHealthSummary, error)

	// GetRackSummary returns the latest summary for one rack
	GetRackSummary(ctx context.Context, rackID string) (*core.RackHealthSummary, error)

	// GetRecentEvents returns the most recent abnormality events, newest first
	GetRecentEvents(ctx context.Context, limit int) ([]core.AbnormalityEvent, error)

	// GetFailedPublishes returns the recorded permanently failed publishes, newest first
	GetFailedPublishes(ctx context.Context, limit int) ([]core.FailedPublish, error)

	IsInterfaceNil() bool
}
