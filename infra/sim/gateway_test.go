package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppfleet/core/dispatch"
	"github.com/kilianp07/ocppfleet/core/ocpp"
)

type handlerRecorder struct {
	mu     sync.Mutex
	result any
	code   string
	err    error
	calls  int
	done   chan struct{}
}

func newRecorder() *handlerRecorder { return &handlerRecorder{done: make(chan struct{}, 1)} }

func (h *handlerRecorder) hit() {
	h.calls++
	select {
	case h.done <- struct{}{}:
	default:
	}
}

func (h *handlerRecorder) OnResult(resp any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result = resp
	h.hit()
}

func (h *handlerRecorder) OnFault(code, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.code = code
	h.hit()
}

func (h *handlerRecorder) OnTransportFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
	h.hit()
}

func request(cp string, a ocpp.Action) dispatch.Request {
	return dispatch.Request{TaskID: "t1", ChargeBoxID: cp, Action: a}
}

func TestGateway_ScriptedReplies(t *testing.T) {
	g := NewGateway(Script{Replies: map[string]Reply{
		"CP2": {FaultCode: "NotSupported", FaultMessage: "no"},
		"CP3": {Result: []byte(`{"status":"Bogus"}`)},
		"CP4": {Result: []byte(`not json`)},
	}}, nil)
	ctx := context.Background()

	ok := newRecorder()
	require.NoError(t, g.Send(ctx, request("CP1", ocpp.ActionClearCache), ok))
	fault := newRecorder()
	require.NoError(t, g.Send(ctx, request("CP2", ocpp.ActionClearCache), fault))
	bogus := newRecorder()
	require.NoError(t, g.Send(ctx, request("CP3", ocpp.ActionClearCache), bogus))
	broken := newRecorder()
	require.NoError(t, g.Send(ctx, request("CP4", ocpp.ActionClearCache), broken))
	g.Wait()

	assert.Equal(t, ocpp.StatusResponse{Status: "Accepted"}, ok.result)
	assert.Equal(t, "NotSupported", fault.code)
	// status validation is the handler's job, decoding succeeds
	assert.Equal(t, ocpp.StatusResponse{Status: "Bogus"}, bogus.result)
	assert.ErrorIs(t, broken.err, ocpp.ErrUnexpectedResponse)
	assert.Len(t, g.Sent(), 4)
}

func TestGateway_SendErrorAndDrop(t *testing.T) {
	boom := errors.New("broker down")
	g := NewGateway(Script{Replies: map[string]Reply{
		"CP1": {Err: boom},
		"CP2": {Drop: true},
	}}, nil)

	h := newRecorder()
	assert.ErrorIs(t, g.Send(context.Background(), request("CP1", ocpp.ActionReset), h), boom)
	require.NoError(t, g.Send(context.Background(), request("CP2", ocpp.ActionReset), h))
	g.Wait()
	assert.Zero(t, h.calls)
	assert.Len(t, g.Sent(), 1)
}

func TestGateway_DelayedReplyCancelled(t *testing.T) {
	g := NewGateway(Script{Replies: map[string]Reply{"CP1": {Result: DefaultResult(ocpp.ActionReset), Delay: time.Hour}}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h := newRecorder()
	require.NoError(t, g.Send(ctx, request("CP1", ocpp.ActionReset), h))
	cancel()
	g.Wait()
	assert.Zero(t, h.calls)

	assert.ErrorIs(t, g.Send(ctx, request("CP1", ocpp.ActionReset), h), context.Canceled)
}

func TestDefaultResultsTranslate(t *testing.T) {
	rules := ocpp.DefaultRules()
	for _, a := range rules.Actions() {
		resp, err := rules.Decode(a, DefaultResult(a))
		require.NoError(t, err, a)
		_, err = rules.Translate(a, resp)
		assert.NoError(t, err, a)
	}
}

func TestRandomResponder(t *testing.T) {
	always := NewRandomResponder(0, 1, 0, 1)
	assert.True(t, always.Reply("CP1", ocpp.ActionReset).Drop)

	faulty := NewRandomResponder(0, 0, 1, 1)
	assert.Equal(t, string(ocpp.FaultInternalError), faulty.Reply("CP1", ocpp.ActionReset).FaultCode)

	fine := NewRandomResponder(time.Millisecond, 0, 0, 1)
	r := fine.Reply("CP1", ocpp.ActionUnlockConnector)
	assert.JSONEq(t, `{"status":"Unlocked"}`, string(r.Result))
	assert.Equal(t, time.Millisecond, r.Delay)
}
