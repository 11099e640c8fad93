package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/ocppfleet/core/events"
	"github.com/kilianp07/ocppfleet/core/logger"
	"github.com/kilianp07/ocppfleet/core/monitoring"
	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/core/task"
	"github.com/kilianp07/ocppfleet/internal/eventbus"
)

// ExecutorConfig sizes the worker pool.
type ExecutorConfig struct {
	// Workers bounds the number of calls executing at once. Defaults to 5.
	Workers int
	// ShutdownGrace bounds the graceful part of Shutdown. Defaults to 30s.
	ShutdownGrace time.Duration
}

// job is one call to one charge point.
type job struct {
	task      *task.Task
	target    string
	action    ocpp.Action
	handler   *ResponseHandler
	call      Call
	submitted time.Time
	deadline  time.Time
	timer     *time.Timer // set under Executor.mu

	settled    chan struct{}
	settleOnce sync.Once
}

// Executor runs the calls of every task on a fixed pool of workers. Each call
// is supervised by a timer armed at submission; expiry records TimedOut.
type Executor struct {
	cfg ExecutorConfig
	log logger.Logger
	bus eventbus.EventBus

	base        context.Context
	cancel      context.CancelFunc
	group       errgroup.Group
	workersDone chan struct{}
	queue       *callQueue
	inflight    atomic.Int64

	mu        sync.Mutex
	closing   bool
	live      map[*job]struct{}
	drained   chan struct{}
	drainOnce sync.Once

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewExecutor starts cfg.Workers workers. bus may be nil.
func NewExecutor(cfg ExecutorConfig, log logger.Logger, bus eventbus.EventBus) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultGraceSeconds * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	e := &Executor{
		cfg:         cfg,
		log:         logger.OrNop(log),
		bus:         bus,
		base:        base,
		cancel:      cancel,
		workersDone: make(chan struct{}),
		queue:       newCallQueue(),
		live:        make(map[*job]struct{}),
		drained:     make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		e.group.Go(e.work)
	}
	go func() {
		_ = e.group.Wait()
		close(e.workersDone)
	}()
	return e
}

// Submit queues one call per target of t and returns without waiting for any
// reply. factory builds the call of each target; timeout applies to each call
// from now on.
func (e *Executor) Submit(t *task.Task, rule ocpp.Rule, timeout time.Duration, factory CallFactory) error {
	if t == nil || factory == nil {
		return fmt.Errorf("%w: nil task or call factory", task.ErrInvalidArgument)
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", task.ErrInvalidArgument)
	}
	now := time.Now()
	targets := t.Targets()
	jobs := make([]*job, 0, len(targets))
	for _, target := range targets {
		j := &job{
			task:      t,
			target:    target,
			action:    rule.Action,
			submitted: now,
			deadline:  now.Add(timeout),
			settled:   make(chan struct{}),
		}
		h, err := NewResponseHandler(t, target, rule, func(o task.Outcome, applied bool) {
			e.resolve(j, o, applied)
		})
		if err != nil {
			return err
		}
		j.handler = h
		j.call = factory(t.ID(), target, h)
		jobs = append(jobs, j)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return ErrExecutorClosed
	}
	for _, j := range jobs {
		j := j
		e.live[j] = struct{}{}
		j.timer = time.AfterFunc(timeout, func() { e.expire(j) })
	}
	e.queue.push(jobs...)
	e.log.Debugw("operation submitted", map[string]any{
		"task_id": string(t.ID()), "action": string(rule.Action), "targets": len(jobs), "timeout": timeout.String(),
	})
	return nil
}

// QueueDepth returns the number of calls waiting for a worker.
func (e *Executor) QueueDepth() int { return e.queue.len() }

// InFlight returns the number of calls currently held by a worker.
func (e *Executor) InFlight() int { return int(e.inflight.Load()) }

func (e *Executor) work() error {
	for {
		j, ok := e.queue.pop()
		if !ok {
			return nil
		}
		e.run(j)
	}
}

// run executes j and holds the worker until the target resolves or the call
// deadline passes.
func (e *Executor) run(j *job) {
	if j.task.Resolved(j.target) {
		e.release(j)
		return
	}
	ctx, cancel := context.WithDeadline(e.base, j.deadline)
	defer cancel()
	e.inflight.Add(1)
	inflightCalls.Inc()
	defer func() {
		e.inflight.Add(-1)
		inflightCalls.Dec()
	}()

	if panicked, err := e.invoke(ctx, j); err != nil {
		if !panicked {
			monitoring.CaptureException(err, e.tags(j))
		}
		j.handler.OnTransportFailure(err)
	}
	select {
	case <-j.settled:
	case <-ctx.Done():
	}
}

func (e *Executor) invoke(ctx context.Context, j *job) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.CapturePanic(r, e.tags(j))
			e.log.Errorf("call %s to %s panicked: %v", j.action, j.target, r)
			panicked, err = true, monitoring.PanicError(r)
		}
	}()
	return false, j.call(ctx)
}

func (e *Executor) tags(j *job) map[string]string {
	return map[string]string{
		"module":        "dispatch_executor",
		"action":        string(j.action),
		"charge_box_id": j.target,
	}
}

func (e *Executor) expire(j *job) {
	o := task.Expired()
	applied, _ := j.task.Record(j.target, o)
	e.resolve(j, o, applied)
}

// resolve is called by every writer of a job: handler, timer and forced stop.
func (e *Executor) resolve(j *job, o task.Outcome, applied bool) {
	if applied {
		latency := time.Since(j.submitted)
		callOutcomes.WithLabelValues(string(j.action), o.Kind.String()).Inc()
		callLatency.WithLabelValues(string(j.action)).Observe(latency.Seconds())
		if e.bus != nil {
			e.bus.Publish(events.OutcomeRecorded{
				TaskID:      j.task.ID(),
				Action:      string(j.action),
				ChargeBoxID: j.target,
				Outcome:     o,
				Latency:     latency,
			})
		}
	} else {
		e.log.Debugw("outcome ignored, target already resolved", map[string]any{
			"task_id": string(j.task.ID()), "charge_box_id": j.target, "outcome": o.Kind.String(),
		})
	}
	e.release(j)
}

// release removes j from the live set once.
func (e *Executor) release(j *job) {
	first := false
	j.settleOnce.Do(func() {
		first = true
		close(j.settled)
	})
	if !first {
		return
	}
	e.mu.Lock()
	delete(e.live, j)
	timer := j.timer
	idle := e.closing && len(e.live) == 0
	e.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	if idle {
		e.drainOnce.Do(func() { close(e.drained) })
	}
}

// Shutdown stops accepting submissions and waits for queued and running calls
// for up to the configured grace period or until ctx is done, whichever comes
// first. Calls still unresolved after that are recorded as abandoned
// transport failures and ErrShutdownForced is returned. Shutdown never waits
// for a call that does not return. Further calls return the first result.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.shutdownOnce.Do(func() { e.shutdownErr = e.shutdown(ctx) })
	return e.shutdownErr
}

func (e *Executor) shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closing = true
	empty := len(e.live) == 0
	e.mu.Unlock()
	if empty {
		e.drainOnce.Do(func() { close(e.drained) })
	}
	e.queue.close()

	idle := make(chan struct{})
	go func() {
		<-e.drained
		<-e.workersDone
		close(idle)
	}()

	grace := time.NewTimer(e.cfg.ShutdownGrace)
	defer grace.Stop()
	select {
	case <-idle:
		e.cancel()
		e.log.Infof("executor stopped")
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}
	return e.forceStop()
}

func (e *Executor) forceStop() error {
	e.cancel()
	dropped := e.queue.drain()

	e.mu.Lock()
	pending := make([]*job, 0, len(e.live))
	for j := range e.live {
		pending = append(pending, j)
		if j.timer != nil {
			j.timer.Stop()
		}
	}
	e.mu.Unlock()

	killed := 0
	for _, j := range pending {
		o := task.TransportFailed(abandonReason)
		applied, _ := j.task.Record(j.target, o)
		if applied {
			killed++
			abandonedCalls.Inc()
		}
		e.resolve(j, o, applied)
	}
	e.log.Warnw("executor shutdown forced, killing non-finished calls", map[string]any{
		"killed":    killed,
		"unstarted": len(dropped),
	})
	if killed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d calls abandoned", ErrShutdownForced, killed)
}
