package detector

import (
	"context"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

// Rule defines one side-effect-free abnormality check over a rack health summary. Rules are
// independent: the order in which they run does not affect the produced events.
type Rule interface {
	// Name identifies the rule in logs
	Name() string

	// Evaluate returns the abnormality candidates found in the summary. Candidates carry the
	// condition (rack, device, kind, severity); the detector assigns event identity and timing.
	Evaluate(summary core.RackHealthSummary) ([]core.AbnormalityEvent, error)

	IsInterfaceNil() bool
}

// Storer defines the durable store operations needed by the detector
type Storer interface {
	// GetOpenConditions returns all currently open abnormality conditions
	GetOpenConditions(ctx context.Context) ([]core.OpenCondition, error)

	// UpsertOpenCondition creates or refreshes an open abnormality condition
	UpsertOpenCondition(ctx context.Context, condition core.OpenCondition) error

	// CloseCondition removes an open condition once it no longer holds
	CloseCondition(ctx context.Context, rackID string, deviceID string, kind string) error

	// SaveEvents persists the abnormality events for audit
	SaveEvents(ctx context.Context, events []core.AbnormalityEvent) error

	IsInterfaceNil() bool
}
