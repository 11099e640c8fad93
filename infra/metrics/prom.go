package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/ocppfleet/core/metrics"
)

// PromSink records per charge point outcomes and completed operations in
// Prometheus metrics.
type PromSink struct {
	outcomes   *prometheus.CounterVec
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewPromSink registers its metrics on the default Prometheus registerer.
// The /metrics listener is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charge_point_outcomes_total",
		Help: "Terminal outcomes by charge point, action and outcome",
	}, []string{"charge_box_id", "action", "outcome"})
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "operations_completed_total",
		Help: "Operations whose charge points all reached a terminal outcome",
	}, []string{"action"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "operation_duration_seconds",
		Help:    "Time from operation start to its last terminal outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	var err error
	if outcomes, err = register(reg, outcomes); err != nil {
		return nil, err
	}
	if operations, err = register(reg, operations); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &PromSink{outcomes: outcomes, operations: operations, duration: duration}, nil
}

// register returns the collector already registered under the same
// descriptor when there is one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordOutcome increments the outcome counter.
func (s *PromSink) RecordOutcome(rec coremetrics.OutcomeRecord) error {
	s.outcomes.WithLabelValues(rec.ChargeBoxID, rec.Action, rec.Outcome).Inc()
	return nil
}

// RecordOperation counts the operation and observes its duration.
func (s *PromSink) RecordOperation(rec coremetrics.OperationRecord) error {
	s.operations.WithLabelValues(rec.Action).Inc()
	s.duration.WithLabelValues(rec.Action).Observe(rec.Duration.Seconds())
	return nil
}
