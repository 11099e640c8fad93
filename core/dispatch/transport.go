package dispatch

import (
	"context"
	"encoding/json"

	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/core/task"
)

// Handler receives the single reply of one call. Gateways invoke exactly one
// method per request, from any goroutine, or none at all.
type Handler interface {
	// OnResult receives the decoded confirmation payload.
	OnResult(resp any)
	// OnFault receives a protocol error returned by the charge point.
	OnFault(code, message string)
	// OnTransportFailure receives a delivery failure.
	OnTransportFailure(err error)
}

// Request is one OCPP call addressed to a single charge point.
type Request struct {
	TaskID      task.ID
	ChargeBoxID string
	Action      ocpp.Action
	Payload     json.RawMessage
}

// Gateway sends requests to charge points. Send returns once the request is
// handed to the transport; the reply is delivered to h later. A non-nil error
// means the request was not sent and h will not be called. Implementations
// should stop tracking the request when ctx is done.
type Gateway interface {
	Send(ctx context.Context, req Request, h Handler) error
}

// Call issues one request. A returned error is recorded as a transport failure.
type Call func(ctx context.Context) error

// CallFactory builds the call for one charge point of a task.
type CallFactory func(id task.ID, chargeBoxID string, h Handler) Call

// GatewayCalls returns a CallFactory sending action with payload through gw.
func GatewayCalls(gw Gateway, action ocpp.Action, payload json.RawMessage) CallFactory {
	return func(id task.ID, chargeBoxID string, h Handler) Call {
		req := Request{TaskID: id, ChargeBoxID: chargeBoxID, Action: action, Payload: payload}
		return func(ctx context.Context) error {
			return gw.Send(ctx, req, h)
		}
	}
}
