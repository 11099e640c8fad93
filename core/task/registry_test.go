package task

import (
	"errors"
	"testing"
	"time"
)

func newTask(t *testing.T, targets ...string) *Task {
	t.Helper()
	tk, err := New("ClearCache", targets)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return tk
}

func TestRegistry_AddGet(t *testing.T) {
	r := NewRegistry()
	tk := newTask(t, "CP1")
	if err := r.Add(tk); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(tk); err == nil {
		t.Fatalf("expected duplicate error")
	}
	got, err := r.Get(tk.ID())
	if err != nil || got != tk {
		t.Fatalf("get: %v", err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	r.Remove(tk.ID())
	if r.Len() != 0 {
		t.Fatalf("expected task removed")
	}
}

func TestRegistry_ReapKeepsIncomplete(t *testing.T) {
	r := NewRegistry()
	open := newTask(t, "CP1")
	_ = r.Add(open)
	r.MarkConsumed(open.ID())
	if n := r.Reap(time.Now().Add(time.Hour), time.Minute); n != 0 {
		t.Fatalf("reaped %d incomplete tasks", n)
	}
	if r.Len() != 1 {
		t.Fatalf("expected task to remain")
	}
}

func TestRegistry_ReapConsumedAndExpired(t *testing.T) {
	r := NewRegistry()
	consumed := newTask(t, "CP1")
	expired := newTask(t, "CP2")
	fresh := newTask(t, "CP3")
	for _, tk := range []*Task{consumed, expired, fresh} {
		_ = r.Add(tk)
		if _, err := tk.Record(tk.Targets()[0], Succeeded("Accepted")); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	r.MarkConsumed(consumed.ID())

	now := time.Now()
	if n := r.Reap(now, time.Hour); n != 1 {
		t.Fatalf("expected only the consumed task reaped, got %d", n)
	}
	if n := r.Reap(now.Add(2*time.Hour), time.Hour); n != 2 {
		t.Fatalf("expected expired tasks reaped, got %d", n)
	}
	if r.Len() != 0 {
		t.Fatalf("registry not empty: %d", r.Len())
	}
}
