package testsCommon

import (
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

// RuleStub -
type RuleStub struct {
	NameHandler     func() string
	EvaluateHandler func(summary core.RackHealthSummary) ([]core.AbnormalityEvent, error)
}

// Name -
func (stub *RuleStub) Name() string {
	if stub.NameHandler != nil {
		return stub.NameHandler()
	}

	return "ruleStub"
}

// Evaluate -
func (stub *RuleStub) Evaluate(summary core.RackHealthSummary) ([]core.AbnormalityEvent, error) {
	if stub.EvaluateHandler != nil {
		return stub.EvaluateHandler(summary)
	}

	return nil, nil
}

// IsInterfaceNil -
func (stub *RuleStub) IsInterfaceNil() bool {
	return stub == nil
}
