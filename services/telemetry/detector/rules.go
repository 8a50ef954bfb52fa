package detector

import (
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

// overTemperatureRule flags a rack whose max temperature exceeded the critical threshold
type overTemperatureRule struct {
	threshold float64
}

// NewOverTemperatureRule creates the over-temperature rule
func NewOverTemperatureRule(threshold float64) *overTemperatureRule {
	return &overTemperatureRule{threshold: threshold}
}

// Name identifies the rule in logs
func (rule *overTemperatureRule) Name() string {
	return "overTemperature"
}

// Evaluate returns one OVER_TEMP candidate when the rack's max temperature is above the threshold
func (rule *overTemperatureRule) Evaluate(summary core.RackHealthSummary) ([]core.AbnormalityEvent, error) {
	if summary.MaxTemperature <= rule.threshold {
		return nil, nil
	}

	return []core.AbnormalityEvent{
		{
			RackID:               summary.RackID,
			Kind:                 core.KindOverTemp,
			Severity:             core.SeverityCritical,
			SourceCycleTimestamp: summary.CycleTimestamp,
		},
	}, nil
}

// IsInterfaceNil returns true if the value under the interface is nil
func (rule *overTemperatureRule) IsInterfaceNil() bool {
	return rule == nil
}

// unresponsiveRule flags devices whose heartbeat age crossed the stale threshold, escalating to
// CRITICAL past the longer threshold
type unresponsiveRule struct {
	staleSeconds    int64
	criticalSeconds int64
}

// NewUnresponsiveRule creates the device-unresponsive rule
func NewUnresponsiveRule(staleSeconds int64, criticalSeconds int64) *unresponsiveRule {
	return &unresponsiveRule{
		staleSeconds:    staleSeconds,
		criticalSeconds: criticalSeconds,
	}
}

// Name identifies the rule in logs
func (rule *unresponsiveRule) Name() string {
	return "deviceUnresponsive"
}

// Evaluate returns a DEVICE_UNRESPONSIVE candidate for every device past the stale threshold
func (rule *unresponsiveRule) Evaluate(summary core.RackHealthSummary) ([]core.AbnormalityEvent, error) {
	var events []core.AbnormalityEvent
	for deviceID, age := range summary.LastHeartbeatAge {
		if age <= rule.staleSeconds {
			continue
		}

		severity := core.SeverityWarn
		if age > rule.criticalSeconds {
			severity = core.SeverityCritical
		}

		events = append(events, core.AbnormalityEvent{
			RackID:               summary.RackID,
			DeviceID:             deviceID,
			Kind:                 core.KindDeviceUnresponsive,
			Severity:             severity,
			SourceCycleTimestamp: summary.CycleTimestamp,
		})
	}

	return events, nil
}

// IsInterfaceNil returns true if the value under the interface is nil
func (rule *unresponsiveRule) IsInterfaceNil() bool {
	return rule == nil
}

// faultReportedRule flags devices that are faulted for a reason other than staleness: those
// reported an actual FAULT reading within the window
type faultReportedRule struct {
	staleSeconds int64
}

// NewFaultReportedRule creates the fault-reported rule
func NewFaultReportedRule(staleSeconds int64) *faultReportedRule {
	return &faultReportedRule{staleSeconds: staleSeconds}
}

// Name identifies the rule in logs
func (rule *faultReportedRule) Name() string {
	return "faultReported"
}

// Evaluate returns a FAULT_REPORTED candidate for every faulted device that is still reporting
func (rule *faultReportedRule) Evaluate(summary core.RackHealthSummary) ([]core.AbnormalityEvent, error) {
	var events []core.AbnormalityEvent
	for _, deviceID := range summary.FaultedDeviceIDs {
		if summary.LastHeartbeatAge[deviceID] > rule.staleSeconds {
			// staleness is covered by the unresponsive rule
			continue
		}

		events = append(events, core.AbnormalityEvent{
			RackID:               summary.RackID,
			DeviceID:             deviceID,
			Kind:                 core.KindFaultReported,
			Severity:             core.SeverityCritical,
			SourceCycleTimestamp: summary.CycleTimestamp,
		})
	}

	return events, nil
}

// IsInterfaceNil returns true if the value under the interface is nil
func (rule *faultReportedRule) IsInterfaceNil() bool {
	return rule == nil
}

// linkDownRule flags devices whose latest link status reading reported the link down
type linkDownRule struct {
}

// NewLinkDownRule creates the link-down rule
func NewLinkDownRule() *linkDownRule {
	return &linkDownRule{}
}

// Name identifies the rule in logs
func (rule *linkDownRule) Name() string {
	return "linkDown"
}

// Evaluate returns a LINK_DOWN candidate for every device with a down link
func (rule *linkDownRule) Evaluate(summary core.RackHealthSummary) ([]core.AbnormalityEvent, error) {
	var events []core.AbnormalityEvent
	for _, deviceID := range summary.LinkDownDeviceIDs {
		events = append(events, core.AbnormalityEvent{
			RackID:               summary.RackID,
			DeviceID:             deviceID,
			Kind:                 core.KindLinkDown,
			Severity:             core.SeverityCritical,
			SourceCycleTimestamp: summary.CycleTimestamp,
		})
	}

	return events, nil
}

// IsInterfaceNil returns true if the value under the interface is nil
func (rule *linkDownRule) IsInterfaceNil() bool {
	return rule == nil
}
