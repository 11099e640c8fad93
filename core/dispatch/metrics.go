package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	callOutcomes   *prometheus.CounterVec
	callLatency    *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	inflightCalls  prometheus.Gauge
	abandonedCalls prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Gauge, prometheus.Gauge, prometheus.Counter) {
	out := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocpp_call_outcomes_total",
			Help: "Terminal outcomes of OCPP calls by action and outcome",
		},
		[]string{"action", "outcome"},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocpp_call_latency_seconds",
			Help:    "Time from submission of an OCPP call to its terminal outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
	depth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Calls waiting for a free worker",
		},
	)
	inflight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_inflight_calls",
			Help: "Calls currently held by a worker",
		},
	)
	abandoned := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_abandoned_calls_total",
			Help: "Calls recorded as abandoned by a forced shutdown",
		},
	)
	return out, lat, depth, inflight, abandoned
}

func init() {
	callOutcomes, callLatency, queueDepth, inflightCalls, abandonedCalls = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(callOutcomes, callLatency, queueDepth, inflightCalls, abandonedCalls)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	callOutcomes, callLatency, queueDepth, inflightCalls, abandonedCalls = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
