package aggregator

import (
	"context"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

// Storer defines the durable store operations needed by the aggregation engine
type Storer interface {
	// GetReadingsInRange returns all readings recorded in (from, to], oldest first
	GetReadingsInRange(ctx context.Context, from int64, to int64) ([]core.TelemetryReading, error)

	// GetKnownDevices returns every device that reported within the retention window, grouped by
	// rack, with the last time each device was seen
	GetKnownDevices(ctx context.Context) (map[string]map[string]int64, error)

	// SaveRackSummary atomically replaces the summary for one rack
	SaveRackSummary(ctx context.Context, summary core.RackHealthSummary) error

	IsInterfaceNil() bool
}
