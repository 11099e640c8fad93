package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/ocppfleet/core/events"
	"github.com/kilianp07/ocppfleet/core/logger"
	"github.com/kilianp07/ocppfleet/core/monitoring"
	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/core/oplog"
	"github.com/kilianp07/ocppfleet/core/task"
	"github.com/kilianp07/ocppfleet/internal/eventbus"
)

// Service is the operator facing entry point: it starts fleet operations and
// reports their per charge point status.
type Service struct {
	rules     *ocpp.Rules
	registry  *task.Registry
	executor  *Executor
	gateway   Gateway
	timeouts  TimeoutPolicy
	retention time.Duration
	store     oplog.Store
	bus       eventbus.EventBus
	log       logger.Logger
	watchers  sync.WaitGroup
}

// NewService wires a Service. store, bus and log may be nil.
func NewService(cfg Config, rules *ocpp.Rules, exec *Executor, gw Gateway, store oplog.Store, bus eventbus.EventBus, log logger.Logger) (*Service, error) {
	if rules == nil || exec == nil || gw == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewService")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(rules); err != nil {
		return nil, err
	}
	return &Service{
		rules:     rules,
		registry:  task.NewRegistry(),
		executor:  exec,
		gateway:   gw,
		timeouts:  cfg.TimeoutPolicy(),
		retention: cfg.Retention(),
		store:     store,
		bus:       bus,
		log:       logger.OrNop(log),
	}, nil
}

// StartOperation sends action with payload to every charge point in targets
// and returns the id of the new task without waiting for any reply.
func (s *Service) StartOperation(ctx context.Context, action ocpp.Action, targets []string, payload json.RawMessage) (task.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rule, err := s.rules.Rule(action)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAction, action)
	}
	t, err := task.New(string(action), targets)
	if err != nil {
		return "", err
	}
	if err := s.registry.Add(t); err != nil {
		return "", err
	}
	timeout := s.timeouts.For(action)
	if err := s.executor.Submit(t, rule, timeout, GatewayCalls(s.gateway, action, payload)); err != nil {
		s.registry.Remove(t.ID())
		return "", err
	}
	if s.bus != nil {
		s.bus.Publish(events.OperationStarted{TaskID: t.ID(), Action: string(action), ChargeBoxIDs: t.Targets()})
	}
	s.log.Infof("operation %s started: %s to %d charge points, timeout %s", t.ID(), action, len(targets), timeout)
	s.watch(t)
	return t.ID(), nil
}

// OperationStatus returns the current snapshot of task id. The final snapshot
// of a complete task marks it for removal on the next Reap.
func (s *Service) OperationStatus(id task.ID) (task.Snapshot, error) {
	t, err := s.registry.Get(id)
	if err != nil {
		return task.Snapshot{}, err
	}
	return s.consume(t.Snapshot()), nil
}

// AwaitOperation waits for task id to complete or ctx to be done and returns
// the snapshot at that point.
func (s *Service) AwaitOperation(ctx context.Context, id task.ID) (task.Snapshot, error) {
	t, err := s.registry.Get(id)
	if err != nil {
		return task.Snapshot{}, err
	}
	return s.consume(t.AwaitCompletion(ctx)), nil
}

func (s *Service) consume(snap task.Snapshot) task.Snapshot {
	if snap.Complete {
		s.registry.MarkConsumed(snap.ID)
	}
	return snap
}

// Actions lists the supported OCPP actions.
func (s *Service) Actions() []ocpp.Action { return s.rules.Actions() }

// Timeout returns the call timeout used for action.
func (s *Service) Timeout(action ocpp.Action) time.Duration { return s.timeouts.For(action) }

// Pending returns the number of tasks still held in memory.
func (s *Service) Pending() int { return s.registry.Len() }

// Reap removes consumed and expired tasks and returns how many were removed.
func (s *Service) Reap(now time.Time) int {
	n := s.registry.Reap(now, s.retention)
	if n > 0 {
		s.log.Debugf("reaped %d operations", n)
	}
	return n
}

// Shutdown drains the executor and waits for completion bookkeeping of every
// task, bounded by ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.executor.Shutdown(ctx)
	done := make(chan struct{})
	go func() {
		s.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warnf("operation bookkeeping still running at shutdown")
	}
	return err
}

func (s *Service) watch(t *task.Task) {
	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		<-t.Done()
		s.completed(t.Snapshot())
	}()
}

func (s *Service) completed(snap task.Snapshot) {
	counts := snap.Counts()
	var duration time.Duration
	if snap.CompletedAt != nil {
		duration = snap.CompletedAt.Sub(snap.CreatedAt)
	}
	if s.bus != nil {
		s.bus.Publish(events.OperationCompleted{
			TaskID:   snap.ID,
			Action:   snap.Operation,
			Counts:   counts,
			Duration: duration,
		})
	}
	fields := map[string]any{
		"task_id":  string(snap.ID),
		"action":   snap.Operation,
		"targets":  len(snap.Targets),
		"duration": duration.String(),
	}
	for kind, n := range counts {
		fields[kind.String()] = n
	}
	s.log.Infow("operation completed", fields)

	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Append(ctx, RecordFromSnapshot(snap)); err != nil {
		s.log.Errorf("oplog append %s: %v", snap.ID, err)
		monitoring.CaptureException(err, map[string]string{"module": "dispatch_service", "task_id": string(snap.ID)})
	}
}

// RecordFromSnapshot converts a snapshot into an operation log record.
func RecordFromSnapshot(snap task.Snapshot) oplog.Record {
	rec := oplog.Record{
		Timestamp:    snap.CreatedAt,
		TaskID:       string(snap.ID),
		Action:       snap.Operation,
		ChargeBoxIDs: make([]string, len(snap.Targets)),
		Results:      make([]oplog.TargetResult, len(snap.Targets)),
		Complete:     snap.Complete,
	}
	if snap.CompletedAt != nil {
		rec.Duration = snap.CompletedAt.Sub(snap.CreatedAt)
	}
	for i, to := range snap.Targets {
		rec.ChargeBoxIDs[i] = to.Target
		rec.Results[i] = oplog.TargetResult{
			ChargeBoxID: to.Target,
			Outcome:     to.Outcome.Kind.String(),
			Value:       to.Outcome.Value,
			Code:        to.Outcome.Code,
			Message:     to.Outcome.Message,
		}
	}
	return rec
}
