package prommetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchesLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchesLabels(m *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")
	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestMetrics_RecordReconciliation(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordReconciliation("subscription", "applied")
	metrics.RecordReconciliation("subscription", "applied")
	metrics.RecordReconciliation("activation", "skipped")

	got := counterValue(t, reg, "test_reconciliations_total",
		map[string]string{"component": "subscription", "outcome": "applied"})
	if got != 2 {
		t.Errorf("expected 2 applied subscription reconciliations, got %v", got)
	}
}

func TestMetrics_RecordActivation(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordActivation("success")
	metrics.RecordActivation("error")

	if got := counterValue(t, reg, "test_tenant_activations_total",
		map[string]string{"status": "success"}); got != 1 {
		t.Errorf("expected 1 successful activation, got %v", got)
	}
}

func TestMetrics_RecordStatusTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordStatusTransition("active", "past_due")

	if got := counterValue(t, reg, "test_subscription_status_transitions_total",
		map[string]string{"from": "active", "to": "past_due"}); got != 1 {
		t.Errorf("expected 1 transition, got %v", got)
	}
}

func TestMetrics_RecordCacheInvalidation(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordCacheInvalidation("success")
	metrics.RecordCacheInvalidation("error")

	if got := counterValue(t, reg, "test_config_cache_invalidations_total",
		map[string]string{"status": "error"}); got != 1 {
		t.Errorf("expected 1 failed invalidation, got %v", got)
	}
}
