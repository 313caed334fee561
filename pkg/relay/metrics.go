package relay

import "time"

// Metrics defines the interface for tracking relay operations.
// All methods are optional - components fall back to NoopMetrics when nil.
type Metrics interface {
	// RecordUpstreamCall records a call to a third-party service.
	// service: "stripe", "identity", "generation", "analytics", "store"
	// status: "success", "error", or an HTTP status code as string
	RecordUpstreamCall(service, operation, status string)

	// RecordUpstreamCallDuration records how long a third-party call took.
	RecordUpstreamCallDuration(service, operation string, duration time.Duration)

	// RecordWebhookEvent records a verified webhook event.
	// outcome: "applied", "no_match", "ignored" or "error"
	RecordWebhookEvent(eventType, outcome string)

	// RecordWebhookError records a webhook rejected before dispatch.
	// errorType: e.g. "invalid_signature", "invalid_payload", "payload_too_large"
	RecordWebhookError(errorType string)

	// RecordAuthFailure records a rejected bearer credential.
	// reason: "unauthenticated" or "invalid_token"
	RecordAuthFailure(reason string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordUpstreamCall(_, _, _ string)                       {}
func (n *NoopMetrics) RecordUpstreamCallDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookEvent(_, _ string)                          {}
func (n *NoopMetrics) RecordWebhookError(_ string)                             {}
func (n *NoopMetrics) RecordAuthFailure(_ string)                              {}

// MetricsOrNoop returns m, or a NoopMetrics when m is nil.
func MetricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return &NoopMetrics{}
	}
	return m
}
