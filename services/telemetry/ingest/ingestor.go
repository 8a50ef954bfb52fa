package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
	"github.com/multiversx/mx-chain-core-go/core/check"
	logger "github.com/multiversx/mx-chain-logger-go"
	"github.com/tidwall/gjson"
)

var log = logger.GetOrCreate("ingest")

// ingestor validates incoming telemetry readings and writes them synchronously to the durable
// store before any acknowledgment. There is no intermediate buffering: an accepted reading is a
// durable reading.
type ingestor struct {
	storage          Storer
	clockSkewSeconds int64
}

// NewIngestor creates a new ingestor instance
func NewIngestor(storage Storer, clockSkewSeconds int64) (*ingestor, error) {
	if check.IfNil(storage) {
		return nil, errors.New("nil storage")
	}
	if clockSkewSeconds < 0 {
		return nil, errors.New("invalid clock skew tolerance")
	}

	return &ingestor{
		storage:          storage,
		clockSkewSeconds: clockSkewSeconds,
	}, nil
}

// Submit validates and durably persists one reading. A nil return is the acknowledgment: the
// reading is committed. Any error is a rejection and the agent is expected to retry.
func (i *ingestor) Submit(ctx context.Context, reading core.TelemetryReading) error {
	err := validateReading(reading)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	skew := reading.Timestamp - now
	if skew > i.clockSkewSeconds || skew < -i.clockSkewSeconds {
		return fmt.Errorf("%w: reading timestamp %d, server time %d", core.ErrClockSkew, reading.Timestamp, now)
	}

	err = i.storage.SaveReading(ctx, reading, now)
	if errors.Is(err, core.ErrStaleOrDuplicate) {
		return err
	}
	if err != nil {
		log.Warn("durable write failed, rejecting reading", "device", reading.DeviceID, "error", err)
		return fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err.Error())
	}

	return nil
}

func validateReading(reading core.TelemetryReading) error {
	if len(reading.DeviceID) == 0 {
		return fmt.Errorf("%w: empty deviceId", core.ErrInvalidPayload)
	}
	if len(reading.RackID) == 0 {
		return fmt.Errorf("%w: empty rackId", core.ErrInvalidPayload)
	}
	if !core.IsValidMetricType(reading.MetricType) {
		return fmt.Errorf("%w: unknown metric type '%s'", core.ErrInvalidPayload, reading.MetricType)
	}
	if reading.Timestamp <= 0 {
		return fmt.Errorf("%w: missing timestamp", core.ErrInvalidPayload)
	}

	return validateStructuredPayload(reading)
}

// FAULT and LINK_STATUS readings carry a structured JSON payload describing the condition,
// CUSTOM readings may carry any valid JSON document
func validateStructuredPayload(reading core.TelemetryReading) error {
	switch reading.MetricType {
	case core.MetricFault:
		if !gjson.Get(reading.Payload, "code").Exists() {
			return fmt.Errorf("%w: FAULT reading requires a payload with a 'code' field", core.ErrInvalidPayload)
		}
	case core.MetricLinkStatus:
		if !gjson.Get(reading.Payload, "up").Exists() {
			return fmt.Errorf("%w: LINK_STATUS reading requires a payload with an 'up' field", core.ErrInvalidPayload)
		}
	case core.MetricCustom:
		if len(reading.Payload) > 0 && !gjson.Valid(reading.Payload) {
			return fmt.Errorf("%w: CUSTOM reading payload is not valid JSON", core.ErrInvalidPayload)
		}
	}

	return nil
}

// IsInterfaceNil returns true if the value under the interface is nil
func (i *ingestor) IsInterfaceNil() bool {
	return i == nil
}
