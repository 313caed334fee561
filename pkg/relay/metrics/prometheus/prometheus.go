// Package prommetrics implements relay.Metrics with Prometheus collectors.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

// Metrics implements relay.Metrics using Prometheus.
type Metrics struct {
	upstreamCallsTotal   *prometheus.CounterVec
	upstreamCallDuration *prometheus.HistogramVec
	webhookEventsTotal   *prometheus.CounterVec
	webhookErrorsTotal   *prometheus.CounterVec
	authFailuresTotal    *prometheus.CounterVec
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		upstreamCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "upstream_calls_total",
			Help:      "Total number of calls to third-party services.",
		}, []string{"service", "operation", "status"}),

		upstreamCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "upstream_call_duration_seconds",
			Help:      "Duration of calls to third-party services in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "operation"}),

		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Total number of verified webhook events by outcome.",
		}, []string{"event_type", "outcome"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_errors_total",
			Help:      "Total number of webhooks rejected before dispatch.",
		}, []string{"error_type"}),

		authFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Total number of rejected bearer credentials.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) RecordUpstreamCall(service, operation, status string) {
	m.upstreamCallsTotal.WithLabelValues(service, operation, status).Inc()
}

func (m *Metrics) RecordUpstreamCallDuration(service, operation string, duration time.Duration) {
	m.upstreamCallDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	m.webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) RecordWebhookError(errorType string) {
	m.webhookErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) RecordAuthFailure(reason string) {
	m.authFailuresTotal.WithLabelValues(reason).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) relay.Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
