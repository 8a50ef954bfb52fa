package publisher

import (
	"sync"
	"time"
)

// circuitBreaker stops send attempts towards SCADA after a configurable number of consecutive
// failures and lets them through again once the cooldown elapsed. A single probe failure while
// half-open re-opens the breaker for a full cooldown.
type circuitBreaker struct {
	mut                 sync.Mutex
	failureThreshold    uint32
	cooldown            time.Duration
	consecutiveFailures uint32
	openedAt            time.Time
}

func newCircuitBreaker(failureThreshold uint32, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
}

// allow reports whether a send attempt may go out on the wire
func (cb *circuitBreaker) allow() bool {
	cb.mut.Lock()
	defer cb.mut.Unlock()

	if cb.consecutiveFailures < cb.failureThreshold {
		return true
	}

	return time.Since(cb.openedAt) >= cb.cooldown
}

// recordSuccess closes the breaker
func (cb *circuitBreaker) recordSuccess() {
	cb.mut.Lock()
	defer cb.mut.Unlock()

	cb.consecutiveFailures = 0
}

// recordFailure counts one failed attempt and opens the breaker at the threshold
func (cb *circuitBreaker) recordFailure() {
	cb.mut.Lock()
	defer cb.mut.Unlock()

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.openedAt = time.Now()
	}
}
