// Package prommetrics provides a Prometheus implementation of the
// webhook.Metrics interface.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements webhook.Metrics using Prometheus.
type Metrics struct {
	eventsTotal        *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	processingDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Total number of webhook events received.",
		}, []string{"endpoint", "event_type", "status"}),

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_errors_total",
			Help:      "Total number of webhook processing errors.",
		}, []string{"endpoint", "error_type"}),

		processingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_processing_duration_seconds",
			Help:      "Latency of webhook event processing.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "event_type"}),
	}
}

// DefaultMetrics creates metrics registered against the default registry.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}

func (m *Metrics) RecordEvent(endpoint, eventType, status string) {
	m.eventsTotal.WithLabelValues(endpoint, eventType, status).Inc()
}

func (m *Metrics) RecordError(endpoint, errorType string) {
	m.errorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

func (m *Metrics) RecordProcessingDuration(endpoint, eventType string, duration time.Duration) {
	m.processingDuration.WithLabelValues(endpoint, eventType).Observe(duration.Seconds())
}
