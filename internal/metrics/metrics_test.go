package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestForget_DropsProviderSeries(t *testing.T) {
	RefreshCycles.WithLabelValues("forget-me", "success").Inc()
	CircuitBreakerState.WithLabelValues("forget-me").Set(1)
	RefreshCycles.WithLabelValues("keep-me", "success").Inc()

	Forget("forget-me")

	if n := testutil.CollectAndCount(CircuitBreakerState, "gateway_circuit_breaker_state"); n != 0 {
		t.Errorf("expected no breaker series, got %d", n)
	}
	if v := testutil.ToFloat64(RefreshCycles.WithLabelValues("keep-me", "success")); v != 1 {
		t.Errorf("unrelated series changed: %v", v)
	}
}

func TestDefaultGatherer_ProviderLabels(t *testing.T) {
	CatalogModels.WithLabelValues("gathered").Set(3)
	defer Forget("gathered")

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	var family *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "gateway_catalog_models" {
			family = f
		}
	}
	if family == nil {
		t.Fatal("gateway_catalog_models not registered with the default registry")
	}
	if family.GetType() != dto.MetricType_GAUGE {
		t.Errorf("type = %v, want gauge", family.GetType())
	}
	found := false
	for _, m := range family.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "provider" && l.GetValue() == "gathered" {
				found = true
				if v := m.GetGauge().GetValue(); v != 3 {
					t.Errorf("value = %v, want 3", v)
				}
			}
		}
	}
	if !found {
		t.Error("series for provider gathered not exported")
	}
}
