package testsCommon

import (
	"context"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

// ScadaClientStub -
type ScadaClientStub struct {
	SendHandler func(ctx context.Context, event core.AbnormalityEvent) error
}

// Send -
func (stub *ScadaClientStub) Send(ctx context.Context, event core.AbnormalityEvent) error {
	if stub.SendHandler != nil {
		return stub.SendHandler(ctx, event)
	}

	return nil
}

// IsInterfaceNil -
func (stub *ScadaClientStub) IsInterfaceNil() bool {
	return stub == nil
}
