package task

import (
	"fmt"
	"sync"
	"time"
)

type entry struct {
	task     *Task
	consumed bool
}

// Registry keeps in-flight and recently completed tasks addressable by id.
type Registry struct {
	mu    sync.RWMutex
	tasks map[ID]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[ID]*entry)}
}

// Add stores t. Adding an id twice is an error.
func (r *Registry) Add(t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID()]; ok {
		return fmt.Errorf("%w: task %s already registered", ErrInvalidArgument, t.ID())
	}
	r.tasks[t.ID()] = &entry{task: t}
	return nil
}

// Get returns the task registered under id.
func (r *Registry) Get(id ID) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return e.task, nil
}

// Remove drops id regardless of its state.
func (r *Registry) Remove(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
}

// MarkConsumed flags that the final snapshot of id was handed out. It has no
// effect on incomplete tasks.
func (r *Registry) MarkConsumed(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.tasks[id]; ok && e.task.Complete() {
		e.consumed = true
	}
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Reap drops complete tasks that were consumed, and complete tasks that
// finished more than retention before now. It returns the number removed.
func (r *Registry) Reap(now time.Time, retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.tasks {
		if !e.task.Complete() {
			continue
		}
		snap := e.task.Snapshot()
		expired := snap.CompletedAt != nil && now.Sub(*snap.CompletedAt) > retention
		if e.consumed || expired {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}
