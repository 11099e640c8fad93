package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/ocppfleet/core/events"
	coremetrics "github.com/kilianp07/ocppfleet/core/metrics"
	"github.com/kilianp07/ocppfleet/core/task"
	"github.com/kilianp07/ocppfleet/infra/logger"
	"github.com/kilianp07/ocppfleet/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards outcome and
// operation events to sink. It stops when the context is canceled or the bus
// is closed. The returned channel is closed once the collector has stopped.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log := logger.New("metrics_collector")
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := collect(sink, ev); err != nil {
					log.Warnf("record %T: %v", ev, err)
				}
			}
		}
	}()
	return done
}

func collect(sink coremetrics.Sink, ev any) error {
	switch e := ev.(type) {
	case events.OutcomeRecorded:
		return sink.RecordOutcome(outcomeRecord(e, time.Now()))
	case events.OperationCompleted:
		if r, ok := sink.(coremetrics.OperationRecorder); ok {
			return r.RecordOperation(operationRecord(e, time.Now()))
		}
	}
	return nil
}

func outcomeRecord(e events.OutcomeRecorded, now time.Time) coremetrics.OutcomeRecord {
	at := e.Outcome.At
	if at.IsZero() {
		at = now
	}
	return coremetrics.OutcomeRecord{
		TaskID:      string(e.TaskID),
		Action:      e.Action,
		ChargeBoxID: e.ChargeBoxID,
		Outcome:     e.Outcome.Kind.String(),
		FaultCode:   e.Outcome.Code,
		Latency:     e.Latency,
		Time:        at,
	}
}

func operationRecord(e events.OperationCompleted, now time.Time) coremetrics.OperationRecord {
	counts := make(map[string]int, len(e.Counts))
	targets := 0
	for k, n := range e.Counts {
		targets += n
		if k != task.Pending {
			counts[k.String()] = n
		}
	}
	return coremetrics.OperationRecord{
		TaskID:   string(e.TaskID),
		Action:   e.Action,
		Targets:  targets,
		Counts:   counts,
		Duration: e.Duration,
		Time:     now,
	}
}
