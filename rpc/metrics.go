package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "devrpc"

// Outcomes recorded by requests_total.
const (
	outcomeResolved     = "resolved"
	outcomeTimeout      = "timeout"
	outcomeStale        = "stale"
	outcomePublishError = "publish_error"
	outcomeCancelled    = "cancelled"
)

// Collector is a prometheus.Collector that collects metrics about pending
// requests and response routing. A nil *Collector records nothing.
type Collector struct {
	pending   prometheus.Gauge
	requests  *prometheus.CounterVec
	unmatched prometheus.Counter
	malformed prometheus.Counter
	roundTrip prometheus.Histogram
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "pending_requests",
				Help:      "The number of correlated requests awaiting a response.",
			},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Correlated requests by how they completed.",
			}, []string{"outcome"},
		),
		unmatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "unmatched_responses_total",
				Help:      "Responses whose id matched no pending request.",
			},
		),
		malformed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "malformed_responses_total",
				Help:      "Inbound payloads that could not be decoded as responses.",
			},
		),
		roundTrip: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "round_trip_seconds",
				Help:      "Time from registering a request to its response.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.pending.Describe(ch)
	c.requests.Describe(ch)
	c.unmatched.Describe(ch)
	c.malformed.Describe(ch)
	c.roundTrip.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.pending.Collect(ch)
	c.requests.Collect(ch)
	c.unmatched.Collect(ch)
	c.malformed.Collect(ch)
	c.roundTrip.Collect(ch)
}

func (c *Collector) added() {
	if c == nil {
		return
	}
	c.pending.Inc()
}

func (c *Collector) removed(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.pending.Dec()
	c.requests.WithLabelValues(outcome).Inc()
	if outcome == outcomeResolved {
		c.roundTrip.Observe(elapsed.Seconds())
	}
}

func (c *Collector) unmatchedResponse() {
	if c == nil {
		return
	}
	c.unmatched.Inc()
}

func (c *Collector) malformedResponse() {
	if c == nil {
		return
	}
	c.malformed.Inc()
}
