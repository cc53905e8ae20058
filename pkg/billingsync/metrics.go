package billingsync

// Metrics defines the interface for tracking reconciliation outcomes.
// All methods are optional - callers should pass NoopMetrics when unused.
type Metrics interface {
	// RecordReconciliation records the outcome of applying one event.
	// outcome: "applied", "noop", "skipped", "conflict", "error"
	RecordReconciliation(component, outcome string)

	// RecordActivation records a tenant activation attempt.
	// status: "success" or "error"
	RecordActivation(status string)

	// RecordStatusTransition records a subscription status transition.
	RecordStatusTransition(from, to string)

	// RecordCacheInvalidation records a tenant-config cache eviction.
	// status: "success" or "error"
	RecordCacheInvalidation(status string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordReconciliation(_, _ string)   {}
func (n *NoopMetrics) RecordActivation(_ string)          {}
func (n *NoopMetrics) RecordStatusTransition(_, _ string) {}
func (n *NoopMetrics) RecordCacheInvalidation(_ string)   {}
