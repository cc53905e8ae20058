package webhook

import "time"

// Metrics defines the interface for tracking webhook endpoint operations.
// All methods are optional - endpoints should gracefully handle nil metrics.
type Metrics interface {
	// RecordEvent records a webhook event received from the billing provider.
	// status: "success" or "error"
	RecordEvent(endpoint, eventType, status string)

	// RecordError records a webhook processing error.
	// errorType: e.g. "auth_failed", "invalid_payload", "processing_error"
	RecordError(endpoint, errorType string)

	// RecordProcessingDuration records how long it took to process a webhook.
	RecordProcessingDuration(endpoint, eventType string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordError(_, _ string)                               {}
func (n *NoopMetrics) RecordProcessingDuration(_, _ string, _ time.Duration) {}
