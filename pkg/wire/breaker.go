package wire

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings configures the circuit breaker wrapped around connection
// attempts. While the breaker is open, exchanges fail fast with an empty
// body instead of dialling.
type BreakerSettings struct {
	// Failures is the number of consecutive connect failures that opens the breaker.
	Failures uint32
	// Cooldown is how long the breaker stays open before a trial connect.
	Cooldown time.Duration
}

// WithBreaker guards Connect with a circuit breaker. A zero Failures value
// leaves the engine without a breaker.
func WithBreaker(s BreakerSettings) Option {
	return func(e *Engine) {
		if s.Failures == 0 {
			return
		}
		e.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "wire.connect",
			MaxRequests: 1,
			Timeout:     s.Cooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= s.Failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				// Logger options may be applied after this one.
				logger := e.logger
				if logger == nil {
					logger = slog.Default()
				}
				logger.Warn("wire: breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
}

// BreakerState reports the breaker state, or "disabled" when none is set.
func (e *Engine) BreakerState() string {
	if e.breaker == nil {
		return "disabled"
	}
	return e.breaker.State().String()
}
