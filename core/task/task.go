package task

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ID identifies one logical operation.
type ID string

// NewID returns a fresh random task identifier.
func NewID() ID { return ID(uuid.NewString()) }

// cell holds the outcome of one target. A nil pointer means Pending.
type cell struct {
	outcome atomic.Pointer[Outcome]
}

// Task correlates the per charge point outcomes of one operation.
//
// The target set and its order are fixed at creation. Every target moves
// exactly once from Pending to a terminal outcome; the first terminal write
// wins and later writes are ignored. All methods are safe for concurrent use.
type Task struct {
	id        ID
	operation string
	targets   []string
	index     map[string]int
	cells     []cell

	createdAt   time.Time
	completedAt atomic.Int64
	remaining   atomic.Int64
	done        chan struct{}
}

// New creates a task for operation against the given charge points.
// It fails with ErrInvalidArgument when targets is empty, contains an empty
// identifier or contains duplicates.
func New(operation string, targets []string) (*Task, error) {
	return NewWithID(NewID(), operation, targets)
}

// NewWithID is New with a caller supplied identifier.
func NewWithID(id ID, operation string, targets []string) (*Task, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty task id", ErrInvalidArgument)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: empty target set", ErrInvalidArgument)
	}
	index := make(map[string]int, len(targets))
	for i, t := range targets {
		if t == "" {
			return nil, fmt.Errorf("%w: empty target id at position %d", ErrInvalidArgument, i)
		}
		if _, dup := index[t]; dup {
			return nil, fmt.Errorf("%w: duplicate target %q", ErrInvalidArgument, t)
		}
		index[t] = i
	}
	t := &Task{
		id:        id,
		operation: operation,
		targets:   append([]string(nil), targets...),
		index:     index,
		cells:     make([]cell, len(targets)),
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
	t.remaining.Store(int64(len(targets)))
	return t, nil
}

// ID returns the task identifier.
func (t *Task) ID() ID { return t.id }

// Operation returns the operation kind tag.
func (t *Task) Operation() string { return t.operation }

// Targets returns a copy of the target set in creation order.
func (t *Task) Targets() []string { return append([]string(nil), t.targets...) }

// CreatedAt returns the creation time.
func (t *Task) CreatedAt() time.Time { return t.createdAt }

// Done is closed once every target has a terminal outcome.
func (t *Task) Done() <-chan struct{} { return t.done }

// Has reports whether target belongs to the task.
func (t *Task) Has(target string) bool {
	_, ok := t.index[target]
	return ok
}

// Resolved reports whether target already has a terminal outcome.
func (t *Task) Resolved(target string) bool {
	i, ok := t.index[target]
	return ok && t.cells[i].outcome.Load() != nil
}

// Record stores a terminal outcome for target. applied is false when the
// target was already resolved, in which case the call is a no-op.
func (t *Task) Record(target string, o Outcome) (applied bool, err error) {
	if !o.Kind.Terminal() {
		return false, fmt.Errorf("%w: outcome %s is not terminal", ErrInvalidArgument, o.Kind)
	}
	i, ok := t.index[target]
	if !ok {
		return false, fmt.Errorf("%w: %q in task %s", ErrUnknownTarget, target, t.id)
	}
	if o.At.IsZero() {
		o.At = time.Now()
	}
	if !t.cells[i].outcome.CompareAndSwap(nil, &o) {
		return false, nil
	}
	if t.remaining.Add(-1) == 0 {
		t.completedAt.Store(o.At.UnixNano())
		close(t.done)
	}
	return true, nil
}

// Complete reports whether every target has a terminal outcome.
func (t *Task) Complete() bool { return t.remaining.Load() == 0 }

// Snapshot returns the current outcome of every target. It never blocks.
func (t *Task) Snapshot() Snapshot {
	s := Snapshot{
		ID:        t.id,
		Operation: t.operation,
		CreatedAt: t.createdAt,
		Targets:   make([]TargetOutcome, len(t.targets)),
		Complete:  true,
	}
	for i, target := range t.targets {
		to := TargetOutcome{Target: target}
		if p := t.cells[i].outcome.Load(); p != nil {
			to.Outcome = *p
		} else {
			s.Complete = false
		}
		s.Targets[i] = to
	}
	if s.Complete {
		if ns := t.completedAt.Load(); ns != 0 {
			at := time.Unix(0, ns)
			s.CompletedAt = &at
		}
	}
	return s
}

// AwaitCompletion blocks until the task completes or ctx is done and returns
// the snapshot at that point. An expired ctx yields a partial snapshot.
func (t *Task) AwaitCompletion(ctx context.Context) Snapshot {
	select {
	case <-t.done:
	case <-ctx.Done():
	}
	return t.Snapshot()
}

// TargetOutcome pairs a charge point with its outcome.
type TargetOutcome struct {
	Target  string  `json:"charge_box_id"`
	Outcome Outcome `json:"outcome"`
}

// Snapshot is a point in time view of a task.
type Snapshot struct {
	ID          ID              `json:"task_id"`
	Operation   string          `json:"operation"`
	Targets     []TargetOutcome `json:"targets"`
	Complete    bool            `json:"complete"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Outcome returns the outcome of target in the snapshot.
func (s Snapshot) Outcome(target string) (Outcome, bool) {
	for _, to := range s.Targets {
		if to.Target == target {
			return to.Outcome, true
		}
	}
	return Outcome{}, false
}

// Counts returns the number of targets per outcome kind.
func (s Snapshot) Counts() map[OutcomeKind]int {
	out := make(map[OutcomeKind]int, 5)
	for _, to := range s.Targets {
		out[to.Outcome.Kind]++
	}
	return out
}
