package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/ocppfleet/core/dispatch"
	"github.com/kilianp07/ocppfleet/core/ocpp"
)

// Gateway is an in-process dispatch.Gateway answering through a Responder.
// Replies are decoded with the same rules a broker gateway uses.
type Gateway struct {
	responder Responder
	rules     *ocpp.Rules

	mu   sync.Mutex
	sent []dispatch.Request
	wg   sync.WaitGroup
}

// NewGateway returns a gateway answering with r, or Accept when r is nil.
func NewGateway(r Responder, rules *ocpp.Rules) *Gateway {
	if r == nil {
		r = Accept
	}
	if rules == nil {
		rules = ocpp.DefaultRules()
	}
	return &Gateway{responder: r, rules: rules}
}

// Send implements dispatch.Gateway.
func (g *Gateway) Send(ctx context.Context, req dispatch.Request, h dispatch.Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	reply := g.responder.Reply(req.ChargeBoxID, req.Action)
	if reply.Err != nil {
		return reply.Err
	}
	g.mu.Lock()
	g.sent = append(g.sent, req)
	g.mu.Unlock()
	if reply.Drop {
		return nil
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if reply.Delay > 0 {
			timer := time.NewTimer(reply.Delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		}
		g.deliver(req.Action, reply, h)
	}()
	return nil
}

func (g *Gateway) deliver(action ocpp.Action, reply Reply, h dispatch.Handler) {
	if reply.FaultCode != "" {
		h.OnFault(reply.FaultCode, reply.FaultMessage)
		return
	}
	resp, err := g.rules.Decode(action, reply.Result)
	if err != nil {
		h.OnTransportFailure(fmt.Errorf("malformed response: %w", err))
		return
	}
	h.OnResult(resp)
}

// Sent returns the requests accepted so far.
func (g *Gateway) Sent() []dispatch.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]dispatch.Request, len(g.sent))
	copy(out, g.sent)
	return out
}

// Wait blocks until every scheduled reply has been delivered or dropped.
func (g *Gateway) Wait() { g.wg.Wait() }
