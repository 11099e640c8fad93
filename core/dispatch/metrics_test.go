package dispatch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistration(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	// touch metrics so they are exported
	callOutcomes.WithLabelValues("Reset", "success").Inc()
	callLatency.WithLabelValues("Reset").Observe(0.1)
	queueDepth.Set(1)
	inflightCalls.Set(1)
	abandonedCalls.Inc()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[*mf.Name] = true
	}
	expected := []string{
		"ocpp_call_outcomes_total",
		"ocpp_call_latency_seconds",
		"dispatch_queue_depth",
		"dispatch_inflight_calls",
		"dispatch_abandoned_calls_total",
	}
	for _, n := range expected {
		if !names[n] {
			t.Errorf("metric %s not registered", n)
		}
	}
}
