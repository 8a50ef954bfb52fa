package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
	"github.com/multiversx/mx-chain-core-go/core/check"
	logger "github.com/multiversx/mx-chain-logger-go"
)

var log = logger.GetOrCreate("detector")

// detector runs the configured rule set over rack health summaries and deduplicates the
// candidates against the open conditions kept in the durable store. All dedup state lives in the
// store so any instance can take over detection after another's failure.
type detector struct {
	storage                 Storer
	rules                   []Rule
	renotifyIntervalSeconds int64
}

// NewDetector creates a new abnormality detector instance
func NewDetector(storage Storer, rules []Rule, renotifyIntervalSeconds int64) (*detector, error) {
	if check.IfNil(storage) {
		return nil, errors.New("nil storage")
	}
	if len(rules) == 0 {
		return nil, errors.New("empty rule set")
	}
	for idx, rule := range rules {
		if check.IfNil(rule) {
			return nil, fmt.Errorf("nil rule at index %d", idx)
		}
	}

	return &detector{
		storage:                 storage,
		rules:                   rules,
		renotifyIntervalSeconds: renotifyIntervalSeconds,
	}, nil
}

// Detect evaluates every rule over every summary and emits an event only on a state transition
// (a condition newly opened or escalated) or when a long-standing CRITICAL condition crosses the
// re-notification interval. Conditions no longer asserted for an evaluated rack are closed.
// A rule returning an error is logged and skipped for that summary, it aborts nothing else.
func (d *detector) Detect(ctx context.Context, summaries []core.RackHealthSummary) ([]core.AbnormalityEvent, error) {
	openConditions, err := d.storage.GetOpenConditions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err.Error())
	}

	open := make(map[string]core.OpenCondition, len(openConditions))
	for _, condition := range openConditions {
		open[conditionKey(condition.RackID, condition.DeviceID, condition.Kind)] = condition
	}

	now := time.Now().Unix()
	var emitted []core.AbnormalityEvent
	asserted := make(map[string]struct{})

	for _, summary := range summaries {
		for _, rule := range d.rules {
			candidates, ruleErr := rule.Evaluate(summary)
			if ruleErr != nil {
				log.Warn("rule evaluation failed, skipping",
					"rule", rule.Name(), "rack", summary.RackID, "error", ruleErr)
				continue
			}

			for _, candidate := range candidates {
				key := conditionKey(candidate.RackID, candidate.DeviceID, candidate.Kind)
				asserted[key] = struct{}{}

				event, shouldEmit, emitErr := d.processCandidate(ctx, candidate, open[key], now)
				if emitErr != nil {
					return nil, emitErr
				}
				if shouldEmit {
					emitted = append(emitted, event)
				}
			}
		}
	}

	err = d.closeClearedConditions(ctx, summaries, open, asserted)
	if err != nil {
		return nil, err
	}

	err = d.storage.SaveEvents(ctx, emitted)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err.Error())
	}

	return emitted, nil
}

func (d *detector) processCandidate(
	ctx context.Context,
	candidate core.AbnormalityEvent,
	existing core.OpenCondition,
	now int64,
) (core.AbnormalityEvent, bool, error) {
	isOpen := len(existing.Kind) > 0
	escalated := isOpen && existing.Severity != candidate.Severity
	renotify := isOpen &&
		candidate.Severity == core.SeverityCritical &&
		d.renotifyIntervalSeconds > 0 &&
		now-existing.LastNotifiedAt >= d.renotifyIntervalSeconds

	if isOpen && !escalated && !renotify {
		return core.AbnormalityEvent{}, false, nil
	}

	openedAt := now
	if isOpen {
		openedAt = existing.OpenedAt
	}

	err := d.storage.UpsertOpenCondition(ctx, core.OpenCondition{
		RackID:         candidate.RackID,
		DeviceID:       candidate.DeviceID,
		Kind:           candidate.Kind,
		Severity:       candidate.Severity,
		OpenedAt:       openedAt,
		LastNotifiedAt: now,
	})
	if err != nil {
		return core.AbnormalityEvent{}, false, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err.Error())
	}

	event := candidate
	event.EventID = uuid.NewString()
	event.DetectedAt = now

	return event, true, nil
}

// closeClearedConditions closes the open conditions of evaluated racks that were not re-asserted
// this cycle. Conditions of racks absent from this detection run are left untouched.
func (d *detector) closeClearedConditions(
	ctx context.Context,
	summaries []core.RackHealthSummary,
	open map[string]core.OpenCondition,
	asserted map[string]struct{},
) error {
	evaluatedRacks := make(map[string]struct{}, len(summaries))
	for _, summary := range summaries {
		evaluatedRacks[summary.RackID] = struct{}{}
	}

	for key, condition := range open {
		_, evaluated := evaluatedRacks[condition.RackID]
		if !evaluated {
			continue
		}
		_, stillAsserted := asserted[key]
		if stillAsserted {
			continue
		}

		err := d.storage.CloseCondition(ctx, condition.RackID, condition.DeviceID, condition.Kind)
		if err != nil {
			return fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err.Error())
		}

		log.Debug("condition cleared", "rack", condition.RackID, "device", condition.DeviceID, "kind", condition.Kind)
	}

	return nil
}

func conditionKey(rackID string, deviceID string, kind string) string {
	return rackID + "|" + deviceID + "|" + kind
}

// IsInterfaceNil returns true if the value under the interface is nil
func (d *detector) IsInterfaceNil() bool {
	return d == nil
}
