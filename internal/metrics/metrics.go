// Package metrics exposes engine and session events as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/wirebot/pkg/bot"
	"github.com/flemzord/wirebot/pkg/wire"
)

const namespace = "wirebot"

// Collector implements wire.Observer and bot.Observer on a private registry.
type Collector struct {
	registry *prometheus.Registry

	exchanges       *prometheus.CounterVec
	exchangeSeconds *prometheus.HistogramVec
	bodyBytes       prometheus.Histogram
	polls           prometheus.Counter
	delivered       prometheus.Counter
	lastPoll        prometheus.Gauge
	failures        *prometheus.CounterVec
	sends           *prometheus.CounterVec
	sendAttempts    prometheus.Histogram
}

var (
	_ wire.Observer = (*Collector)(nil)
	_ bot.Observer  = (*Collector)(nil)
)

// New creates a Collector with Go runtime and process collectors registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "exchanges_total",
			Help:      "HTTP exchanges with the Bot API by method and outcome.",
		}, []string{"method", "outcome"}),
		exchangeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "exchange_duration_seconds",
			Help:      "Time from connect to the end of the response body.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method"}),
		bodyBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "body_bytes",
			Help:      "Response body sizes kept by the engine.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 9),
		}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "polls_total",
			Help:      "getUpdates polls performed.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "delivered_total",
			Help:      "Message records delivered to the caller.",
		}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "last_poll_timestamp_seconds",
			Help:      "Unix time of the last finished poll.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "failures_total",
			Help:      "Poll failures by kind.",
		}, []string{"kind"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "total",
			Help:      "Bot actions by method and result.",
		}, []string{"method", "result"}),
		sendAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "attempts",
			Help:      "Attempts taken per bot action.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.exchanges, c.exchangeSeconds, c.bodyBytes,
		c.polls, c.delivered, c.lastPoll, c.failures,
		c.sends, c.sendAttempts,
	)
	return c
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// WatchBreaker exports the engine breaker state as a gauge: 0 closed,
// 1 half-open, 2 open. Engines without a breaker report 0.
func (c *Collector) WatchBreaker(e *wire.Engine) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "wire",
		Name:      "breaker_state",
		Help:      "Connect circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, func() float64 {
		switch e.BreakerState() {
		case "half-open":
			return 1
		case "open":
			return 2
		default:
			return 0
		}
	}))
}

// ObserveExchange implements wire.Observer.
func (c *Collector) ObserveExchange(method string, outcome wire.Outcome, bodyBytes int, elapsed time.Duration) {
	c.exchanges.WithLabelValues(method, string(outcome)).Inc()
	c.exchangeSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
	if outcome != wire.OutcomeConnectError {
		c.bodyBytes.Observe(float64(bodyBytes))
	}
}

// ObservePoll implements bot.Observer.
func (c *Collector) ObservePoll(delivered int) {
	c.polls.Inc()
	c.delivered.Add(float64(delivered))
	c.lastPoll.SetToCurrentTime()
}

// ObserveFailure implements bot.Observer.
func (c *Collector) ObserveFailure(kind error) {
	c.failures.WithLabelValues(FailureKind(kind)).Inc()
}

// ObserveSend implements bot.Observer.
func (c *Collector) ObserveSend(method string, attempts int, err error) {
	result := "ok"
	var apiErr *bot.APIError
	switch {
	case errors.As(err, &apiErr):
		result = "api_error"
	case err != nil:
		result = "failed"
	}
	c.sends.WithLabelValues(method, result).Inc()
	c.sendAttempts.Observe(float64(attempts))
}

// FailureKind maps a bot failure sentinel to a metric label.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, bot.ErrConnect):
		return "connect"
	case errors.Is(err, bot.ErrPartialBody):
		return "partial_body"
	case errors.Is(err, bot.ErrOversized):
		return "oversized"
	case errors.Is(err, bot.ErrParse):
		return "parse"
	case errors.Is(err, bot.ErrMissingField):
		return "missing_field"
	default:
		return "other"
	}
}
