package wire

import "time"

// Outcome classifies a finished exchange.
type Outcome string

// Exchange outcomes.
const (
	OutcomeOK           Outcome = "ok"
	OutcomePartial      Outcome = "partial"
	OutcomeConnectError Outcome = "connect_error"
)

// Observer receives one call per finished exchange. Method is the Bot API
// method name (never the full path, which carries the token).
type Observer interface {
	ObserveExchange(method string, outcome Outcome, bodyBytes int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveExchange(string, Outcome, int, time.Duration) {}
