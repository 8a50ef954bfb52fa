package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
	"github.com/multiversx/mx-chain-core-go/core/check"
	logger "github.com/multiversx/mx-chain-logger-go"
)

var log = logger.GetOrCreate("publisher")

const initialRetryInterval = 500 * time.Millisecond

// ArgsScadaPublisher defines the SCADA publisher arguments
type ArgsScadaPublisher struct {
	Client                         ScadaClient
	Storage                        Storer
	CircuitBreakerFailureThreshold uint32
	CircuitBreakerCooldown         time.Duration
	MaxPublishRetries              uint32
}

// scadaPublisher delivers abnormality events to SCADA with at-least-once semantics: bounded
// retries with exponential backoff per event, a circuit breaker across events, and a durable
// record of every event that could not be delivered.
type scadaPublisher struct {
	client     ScadaClient
	storage    Storer
	breaker    *circuitBreaker
	maxRetries uint32
}

// NewScadaPublisher creates a new SCADA publisher instance
func NewScadaPublisher(args ArgsScadaPublisher) (*scadaPublisher, error) {
	if check.IfNil(args.Client) {
		return nil, errors.New("nil SCADA client")
	}
	if check.IfNil(args.Storage) {
		return nil, errors.New("nil storage")
	}
	if args.CircuitBreakerFailureThreshold == 0 {
		return nil, errors.New("invalid circuit breaker failure threshold")
	}

	return &scadaPublisher{
		client:     args.Client,
		storage:    args.Storage,
		breaker:    newCircuitBreaker(args.CircuitBreakerFailureThreshold, args.CircuitBreakerCooldown),
		maxRetries: args.MaxPublishRetries,
	}, nil
}

// Publish delivers each event independently and reports the per-event outcome. Events that
// exhaust their retries or hit an open breaker are durably recorded as failed publishes, never
// silently dropped. The returned error signals only a failure to record such an event.
func (p *scadaPublisher) Publish(ctx context.Context, events []core.AbnormalityEvent) (core.PublishResult, error) {
	result := core.PublishResult{
		Delivered: make([]core.EventDelivery, 0, len(events)),
		Failed:    make([]core.EventDelivery, 0),
	}

	for _, event := range events {
		delivery := p.publishOne(ctx, event)
		if delivery.Delivery == core.DeliveryDelivered {
			result.Delivered = append(result.Delivered, delivery)
			continue
		}

		result.Failed = append(result.Failed, delivery)

		err := p.storage.SaveFailedPublish(ctx, core.FailedPublish{
			Event:     event,
			FailedAt:  time.Now().Unix(),
			Attempts:  delivery.Attempts,
			LastError: delivery.Error,
		})
		if err != nil {
			return result, fmt.Errorf("%w: recording failed publish for event %s: %s",
				core.ErrStoreUnavailable, event.EventID, err.Error())
		}
	}

	log.Debug("publish finished", "delivered", len(result.Delivered), "failed", len(result.Failed))

	return result, nil
}

func (p *scadaPublisher) publishOne(ctx context.Context, event core.AbnormalityEvent) core.EventDelivery {
	if !p.breaker.allow() {
		log.Debug("circuit breaker open, short-circuiting send", "eventId", event.EventID)
		return core.EventDelivery{
			EventID:  event.EventID,
			Delivery: core.DeliveryShortCircuited,
			Error:    core.ErrCircuitOpen.Error(),
		}
	}

	attempts := 0
	operation := func() error {
		attempts++

		if !p.breaker.allow() {
			// the breaker opened while retrying this event, stop here
			return backoff.Permanent(core.ErrCircuitOpen)
		}

		sendErr := p.client.Send(ctx, event)
		if sendErr != nil {
			p.breaker.recordFailure()
			log.Debug("send attempt failed", "eventId", event.EventID, "attempt", attempts, "error", sendErr)
			return sendErr
		}

		p.breaker.recordSuccess()
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = initialRetryInterval

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(p.maxRetries)), ctx))
	if err != nil {
		log.Warn("event delivery failed permanently", "eventId", event.EventID, "attempts", attempts, "error", err)

		delivery := core.DeliveryFailed
		if errors.Is(err, core.ErrCircuitOpen) {
			delivery = core.DeliveryShortCircuited
		}

		return core.EventDelivery{
			EventID:  event.EventID,
			Delivery: delivery,
			Attempts: attempts,
			Error:    err.Error(),
		}
	}

	return core.EventDelivery{
		EventID:  event.EventID,
		Delivery: core.DeliveryDelivered,
		Attempts: attempts,
	}
}

// IsInterfaceNil returns true if the value under the interface is nil
func (p *scadaPublisher) IsInterfaceNil() bool {
	return p == nil
}
