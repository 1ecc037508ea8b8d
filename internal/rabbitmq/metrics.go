package rabbitmq

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects transport-level counters on a caller-supplied
// registerer. A nil *Metrics is a valid no-op collector, so callers
// that don't care about metrics pass nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	reconnects prometheus.Counter
	channels   *prometheus.CounterVec
}

// NewMetrics creates and registers the transport metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rabbitmq_transport",
			Name:      "operations_total",
			Help:      "Total broker operations issued by the transport.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rabbitmq_transport",
			Name:      "operation_duration_seconds",
			Help:      "Duration of broker operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rabbitmq_transport",
			Name:      "reconnect_attempts_total",
			Help:      "Total reconnection attempts after a lost connection.",
		}),
		channels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rabbitmq_transport",
			Name:      "pooled_channel_events_total",
			Help:      "Channel pool churn: channels opened and discarded.",
		}, []string{"event"}),
	}
	reg.MustRegister(m.operations, m.duration, m.reconnects, m.channels)
	return m
}

// ObserveOperation records one broker operation.
func (m *Metrics) ObserveOperation(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncReconnect records one reconnection attempt.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// IncChannelOpened records a channel joining the pool.
func (m *Metrics) IncChannelOpened() {
	if m == nil {
		return
	}
	m.channels.WithLabelValues("opened").Inc()
}

// IncChannelClosed records a channel leaving the pool.
func (m *Metrics) IncChannelClosed() {
	if m == nil {
		return
	}
	m.channels.WithLabelValues("closed").Inc()
}
