package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
	"github.com/multiversx/mx-chain-core-go/core/check"
	logger "github.com/multiversx/mx-chain-logger-go"
	"github.com/tidwall/gjson"
)

var log = logger.GetOrCreate("aggregator")

// deviceState accumulates per-device facts while walking the readings of one cycle
type deviceState struct {
	lastSeenAt     int64
	maxTemperature float64
	hasTemperature bool
	lastFaultAt    int64
	lastFaultOpen  bool
	lastLinkAt     int64
	lastLinkDown   bool
}

// engine computes per-rack health summaries from the raw readings of one lookback window.
// RunCycle must only be invoked while holding the aggregation lease: the per-rack atomic swap
// relies on a single writer per cycle.
type engine struct {
	storage               Storer
	lookbackSeconds       int64
	heartbeatStaleSeconds int64
}

// NewEngine creates a new aggregation engine instance
func NewEngine(storage Storer, lookbackSeconds int64, heartbeatStaleSeconds int64) (*engine, error) {
	if check.IfNil(storage) {
		return nil, errors.New("nil storage")
	}
	if lookbackSeconds <= 0 {
		return nil, errors.New("invalid lookback window")
	}

	return &engine{
		storage:               storage,
		lookbackSeconds:       lookbackSeconds,
		heartbeatStaleSeconds: heartbeatStaleSeconds,
	}, nil
}

// RunCycle computes and durably writes one RackHealthSummary per rack for the provided cycle
// timestamp. Summaries are written one rack at a time: a failure mid-batch aborts the cycle and
// leaves the previous summaries of the remaining racks authoritative.
func (e *engine) RunCycle(ctx context.Context, cycleTimestamp int64) ([]core.RackHealthSummary, error) {
	from := cycleTimestamp - e.lookbackSeconds
	readings, err := e.storage.GetReadingsInRange(ctx, from, cycleTimestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err.Error())
	}

	knownDevices, err := e.storage.GetKnownDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err.Error())
	}

	states := computeDeviceStates(readings)

	summaries := make([]core.RackHealthSummary, 0, len(knownDevices))
	rackIDs := sortedRackIDs(knownDevices)
	for _, rackID := range rackIDs {
		summary := e.summarizeRack(rackID, cycleTimestamp, knownDevices[rackID], states)

		err = e.storage.SaveRackSummary(ctx, summary)
		if err != nil {
			return nil, fmt.Errorf("%w: saving summary for rack %s: %s", core.ErrStoreUnavailable, rackID, err.Error())
		}

		summaries = append(summaries, summary)
	}

	log.Debug("aggregation cycle completed", "cycleTimestamp", cycleTimestamp, "racks", len(summaries), "readings", len(readings))

	return summaries, nil
}

// summarizeRack folds the device states of one rack into its health summary. Every device known
// for the rack appears either as healthy or as faulted: an ingestion gap is an operationally
// significant fact, not a reason to drop the device from the summary.
func (e *engine) summarizeRack(
	rackID string,
	cycleTimestamp int64,
	devices map[string]int64,
	states map[string]*deviceState,
) core.RackHealthSummary {
	summary := core.RackHealthSummary{
		RackID:           rackID,
		CycleTimestamp:   cycleTimestamp,
		DeviceCount:      len(devices),
		FaultedDeviceIDs: make([]string, 0),
		LastHeartbeatAge: make(map[string]int64, len(devices)),
	}

	linkDown := make([]string, 0)
	for deviceID, lastSeenAt := range devices {
		state := states[deviceID]

		effectiveLastSeen := lastSeenAt
		if state != nil && state.lastSeenAt > effectiveLastSeen {
			effectiveLastSeen = state.lastSeenAt
		}

		age := cycleTimestamp - effectiveLastSeen
		if age < 0 {
			age = 0
		}
		summary.LastHeartbeatAge[deviceID] = age

		faulted := age > e.heartbeatStaleSeconds
		if state != nil {
			if state.lastFaultOpen {
				faulted = true
			}
			if state.hasTemperature && state.maxTemperature > summary.MaxTemperature {
				summary.MaxTemperature = state.maxTemperature
			}
			if state.lastLinkDown {
				linkDown = append(linkDown, deviceID)
			}
		}

		if faulted {
			summary.FaultedDeviceIDs = append(summary.FaultedDeviceIDs, deviceID)
		}
	}

	sort.Strings(summary.FaultedDeviceIDs)
	sort.Strings(linkDown)
	if len(linkDown) > 0 {
		summary.LinkDownDeviceIDs = linkDown
	}
	summary.HealthyCount = summary.DeviceCount - len(summary.FaultedDeviceIDs)

	return summary
}

// computeDeviceStates walks the window's readings (already ordered oldest first) and keeps, per
// device, the facts the summary needs: last time seen, max temperature, latest fault and latest
// link status
func computeDeviceStates(readings []core.TelemetryReading) map[string]*deviceState {
	states := make(map[string]*deviceState)
	for _, reading := range readings {
		state := states[reading.DeviceID]
		if state == nil {
			state = &deviceState{}
			states[reading.DeviceID] = state
		}

		if reading.Timestamp > state.lastSeenAt {
			state.lastSeenAt = reading.Timestamp
		}

		switch reading.MetricType {
		case core.MetricTemperature:
			if !state.hasTemperature || reading.Value > state.maxTemperature {
				state.maxTemperature = reading.Value
				state.hasTemperature = true
			}
		case core.MetricFault:
			if reading.Timestamp >= state.lastFaultAt {
				state.lastFaultAt = reading.Timestamp
				state.lastFaultOpen = !gjson.Get(reading.Payload, "resolved").Bool()
			}
		case core.MetricLinkStatus:
			if reading.Timestamp >= state.lastLinkAt {
				state.lastLinkAt = reading.Timestamp
				state.lastLinkDown = !gjson.Get(reading.Payload, "up").Bool()
			}
		}
	}

	return states
}

func sortedRackIDs(knownDevices map[string]map[string]int64) []string {
	rackIDs := make([]string, 0, len(knownDevices))
	for rackID := range knownDevices {
		rackIDs = append(rackIDs, rackID)
	}
	sort.Strings(rackIDs)

	return rackIDs
}

// IsInterfaceNil returns true if the value under the interface is nil
func (e *engine) IsInterfaceNil() bool {
	return e == nil
}
