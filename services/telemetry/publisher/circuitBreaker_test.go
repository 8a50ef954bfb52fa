package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	t.Run("stays closed below the threshold", func(t *testing.T) {
		cb := newCircuitBreaker(3, time.Hour)

		cb.recordFailure()
		cb.recordFailure()

		assert.True(t, cb.allow())
	})
	t.Run("opens at the threshold", func(t *testing.T) {
		cb := newCircuitBreaker(3, time.Hour)

		cb.recordFailure()
		cb.recordFailure()
		cb.recordFailure()

		assert.False(t, cb.allow())
	})
	t.Run("success resets the consecutive failure count", func(t *testing.T) {
		cb := newCircuitBreaker(3, time.Hour)

		cb.recordFailure()
		cb.recordFailure()
		cb.recordSuccess()
		cb.recordFailure()
		cb.recordFailure()

		assert.True(t, cb.allow())
	})
	t.Run("allows a probe after the cooldown", func(t *testing.T) {
		cb := newCircuitBreaker(1, 20*time.Millisecond)

		cb.recordFailure()
		assert.False(t, cb.allow())

		time.Sleep(30 * time.Millisecond)
		assert.True(t, cb.allow())
	})
	t.Run("a failed probe re-opens for a full cooldown", func(t *testing.T) {
		cb := newCircuitBreaker(1, 20*time.Millisecond)

		cb.recordFailure()
		time.Sleep(30 * time.Millisecond)
		assert.True(t, cb.allow())

		cb.recordFailure()
		assert.False(t, cb.allow())
	})
}
