package ingest

import (
	"context"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

// Storer defines the durable store operations needed by the ingestor
type Storer interface {
	// SaveReading atomically checks the per-device sequence number and persists the reading.
	// The reading is durable once this returns nil.
	SaveReading(ctx context.Context, reading core.TelemetryReading, recordedAt int64) error

	IsInterfaceNil() bool
}
