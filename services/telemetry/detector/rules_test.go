package detector

import (
	"testing"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverTemperatureRule(t *testing.T) {
	t.Parallel()

	rule := NewOverTemperatureRule(90)
	assert.False(t, rule.IsInterfaceNil())

	t.Run("below the threshold emits nothing", func(t *testing.T) {
		events, err := rule.Evaluate(core.RackHealthSummary{RackID: "rack-1", MaxTemperature: 85})

		assert.Nil(t, err)
		assert.Empty(t, events)
	})
	t.Run("at the threshold emits nothing", func(t *testing.T) {
		events, err := rule.Evaluate(core.RackHealthSummary{RackID: "rack-1", MaxTemperature: 90})

		assert.Nil(t, err)
		assert.Empty(t, events)
	})
	t.Run("above the threshold emits one critical candidate", func(t *testing.T) {
		events, err := rule.Evaluate(core.RackHealthSummary{
			RackID:         "rack-1",
			CycleTimestamp: 1000,
			MaxTemperature: 95,
		})

		assert.Nil(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, core.KindOverTemp, events[0].Kind)
		assert.Equal(t, core.SeverityCritical, events[0].Severity)
		assert.Equal(t, "rack-1", events[0].RackID)
		assert.Equal(t, int64(1000), events[0].SourceCycleTimestamp)
	})
}

func TestUnresponsiveRule(t *testing.T) {
	t.Parallel()

	rule := NewUnresponsiveRule(300, 900)

	t.Run("fresh heartbeats emit nothing", func(t *testing.T) {
		events, err := rule.Evaluate(core.RackHealthSummary{
			RackID:           "rack-1",
			LastHeartbeatAge: map[string]int64{"gpu-1": 60},
		})

		assert.Nil(t, err)
		assert.Empty(t, events)
	})
	t.Run("stale heartbeat emits a warning", func(t *testing.T) {
		events, err := rule.Evaluate(core.RackHealthSummary{
			RackID:           "rack-1",
			LastHeartbeatAge: map[string]int64{"gpu-7": 400},
		})

		assert.Nil(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, core.KindDeviceUnresponsive, events[0].Kind)
		assert.Equal(t, core.SeverityWarn, events[0].Severity)
		assert.Equal(t, "gpu-7", events[0].DeviceID)
	})
	t.Run("very stale heartbeat escalates to critical", func(t *testing.T) {
		events, err := rule.Evaluate(core.RackHealthSummary{
			RackID:           "rack-1",
			LastHeartbeatAge: map[string]int64{"gpu-7": 1000},
		})

		assert.Nil(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, core.SeverityCritical, events[0].Severity)
	})
}

func TestFaultReportedRule(t *testing.T) {
	t.Parallel()

	rule := NewFaultReportedRule(300)

	t.Run("faulted but stale device is left to the unresponsive rule", func(t *testing.T) {
		events, err := rule.Evaluate(core.RackHealthSummary{
			RackID:           "rack-1",
			FaultedDeviceIDs: []string{"gpu-7"},
			LastHeartbeatAge: map[string]int64{"gpu-7": 400},
		})

		assert.Nil(t, err)
		assert.Empty(t, events)
	})
	t.Run("faulted reporting device emits a critical candidate", func(t *testing.T) {
		events, err := rule.Evaluate(core.RackHealthSummary{
			RackID:           "rack-1",
			FaultedDeviceIDs: []string{"gpu-1"},
			LastHeartbeatAge: map[string]int64{"gpu-1": 10},
		})

		assert.Nil(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, core.KindFaultReported, events[0].Kind)
		assert.Equal(t, core.SeverityCritical, events[0].Severity)
	})
}

func TestLinkDownRule(t *testing.T) {
	t.Parallel()

	rule := NewLinkDownRule()

	events, err := rule.Evaluate(core.RackHealthSummary{
		RackID:            "rack-1",
		LinkDownDeviceIDs: []string{"nvswitch-1", "nvswitch-2"},
	})

	assert.Nil(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, core.KindLinkDown, events[0].Kind)
	assert.Equal(t, "nvswitch-1", events[0].DeviceID)
	assert.Equal(t, "nvswitch-2", events[1].DeviceID)
}
