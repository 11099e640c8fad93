package dispatch

import (
	"fmt"
	"sync"

	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/core/task"
)

// ResolveFunc observes the outcome a handler tried to record. applied is
// false when the target had already been resolved by another writer.
type ResolveFunc func(o task.Outcome, applied bool)

// ResponseHandler turns the reply of one charge point into a task outcome.
// It is bound to a task, a target and the translation rule of the action at
// construction. Only the first of OnResult, OnFault and OnTransportFailure
// takes effect.
type ResponseHandler struct {
	task      *task.Task
	target    string
	rule      ocpp.Rule
	onResolve ResolveFunc
	once      sync.Once
}

// NewResponseHandler binds a handler to target of t. onResolve may be nil.
func NewResponseHandler(t *task.Task, target string, rule ocpp.Rule, onResolve ResolveFunc) (*ResponseHandler, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task", task.ErrInvalidArgument)
	}
	if !t.Has(target) {
		return nil, fmt.Errorf("%w: %q in task %s", task.ErrUnknownTarget, target, t.ID())
	}
	return &ResponseHandler{task: t, target: target, rule: rule, onResolve: onResolve}, nil
}

// Target returns the charge point the handler is bound to.
func (h *ResponseHandler) Target() string { return h.target }

// OnResult translates resp with the action rule and records Success. A
// response the rule rejects is recorded as a transport failure.
func (h *ResponseHandler) OnResult(resp any) {
	h.once.Do(func() {
		value, err := h.rule.Translate(resp)
		if err != nil {
			h.record(task.TransportFailed("malformed response: " + err.Error()))
			return
		}
		h.record(task.Succeeded(value))
	})
}

// OnFault records a protocol fault.
func (h *ResponseHandler) OnFault(code, message string) {
	h.once.Do(func() { h.record(task.Faulted(code, message)) })
}

// OnTransportFailure records a delivery failure.
func (h *ResponseHandler) OnTransportFailure(err error) {
	reason := "unknown transport failure"
	if err != nil {
		reason = err.Error()
	}
	h.once.Do(func() { h.record(task.TransportFailed(reason)) })
}

func (h *ResponseHandler) record(o task.Outcome) {
	// target membership was checked at construction and o is terminal
	applied, _ := h.task.Record(h.target, o)
	if h.onResolve != nil {
		h.onResolve(o, applied)
	}
}
