// Package prommetrics provides a Prometheus implementation of the
// billingsync.Metrics interface.
package prommetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements billingsync.Metrics using Prometheus.
type Metrics struct {
	reconciliationsTotal    *prometheus.CounterVec
	activationsTotal        *prometheus.CounterVec
	statusTransitionsTotal  *prometheus.CounterVec
	cacheInvalidationsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		reconciliationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Total number of billing events applied per component.",
		}, []string{"component", "outcome"}),

		activationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_activations_total",
			Help:      "Total number of tenant activation attempts.",
		}, []string{"status"}),

		statusTransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_status_transitions_total",
			Help:      "Total number of subscription status transitions.",
		}, []string{"from", "to"}),

		cacheInvalidationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_cache_invalidations_total",
			Help:      "Total number of tenant config cache invalidations.",
		}, []string{"status"}),
	}
}

// DefaultMetrics creates metrics registered against the default registry.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}

func (m *Metrics) RecordReconciliation(component, outcome string) {
	m.reconciliationsTotal.WithLabelValues(component, outcome).Inc()
}

func (m *Metrics) RecordActivation(status string) {
	m.activationsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordStatusTransition(from, to string) {
	m.statusTransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordCacheInvalidation(status string) {
	m.cacheInvalidationsTotal.WithLabelValues(status).Inc()
}
