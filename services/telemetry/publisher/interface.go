package publisher

import (
	"context"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

// ScadaClient defines the integration channel towards the SCADA system. The SCADA side is
// expected to deduplicate on eventId, so a delivery may safely be retried.
type ScadaClient interface {
	// Send delivers one abnormality event and returns nil once SCADA acknowledged it
	Send(ctx context.Context, event core.AbnormalityEvent) error

	IsInterfaceNil() bool
}

// Storer defines the durable store operations needed by the publisher
type Storer interface {
	// SaveFailedPublish records an event that exhausted all delivery attempts
	SaveFailedPublish(ctx context.Context, failed core.FailedPublish) error

	IsInterfaceNil() bool
}
