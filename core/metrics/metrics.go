package metrics

import (
	"errors"
	"time"
)

// OutcomeRecord is one terminal outcome of one OCPP call.
type OutcomeRecord struct {
	TaskID      string
	Action      string
	ChargeBoxID string
	Outcome     string
	FaultCode   string
	Latency     time.Duration
	Time        time.Time
}

// Sink records call outcomes for observability purposes.
type Sink interface {
	RecordOutcome(rec OutcomeRecord) error
}

// OperationRecord summarizes a completed operation.
type OperationRecord struct {
	TaskID   string
	Action   string
	Targets  int
	Counts   map[string]int
	Duration time.Duration
	Time     time.Time
}

// OperationRecorder is implemented by sinks that also record whole operations.
type OperationRecorder interface {
	RecordOperation(rec OperationRecord) error
}

// NopSink implements Sink and OperationRecorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordOutcome(OutcomeRecord) error     { return nil }
func (NopSink) RecordOperation(OperationRecord) error { return nil }

// MultiSink fans records out to several sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordOutcome forwards rec to every sink and joins their errors.
func (m *MultiSink) RecordOutcome(rec OutcomeRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordOutcome(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordOperation forwards rec to every sink implementing OperationRecorder.
func (m *MultiSink) RecordOperation(rec OperationRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(OperationRecorder); ok {
			if err := r.RecordOperation(rec); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
