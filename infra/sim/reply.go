// Package sim simulates charge point replies. It backs the dry-run gateway
// and the charge point simulator binary.
package sim

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/kilianp07/ocppfleet/core/ocpp"
)

// Reply is the simulated answer of one charge point to one call.
type Reply struct {
	// Result is the confirmation payload sent back as a call result.
	Result json.RawMessage
	// FaultCode and FaultMessage describe a call error when FaultCode is set.
	FaultCode    string
	FaultMessage string
	// Err makes Send fail as if the request could not be delivered.
	Err error
	// Drop suppresses the reply so the call times out.
	Drop bool
	// Delay postpones the reply.
	Delay time.Duration
}

// Responder decides how a charge point answers a call.
type Responder interface {
	Reply(chargeBoxID string, action ocpp.Action) Reply
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(chargeBoxID string, action ocpp.Action) Reply

// Reply implements Responder.
func (f ResponderFunc) Reply(chargeBoxID string, action ocpp.Action) Reply {
	return f(chargeBoxID, action)
}

// DefaultResult returns a plausible confirmation for action.
func DefaultResult(action ocpp.Action) json.RawMessage {
	switch action {
	case ocpp.ActionUnlockConnector:
		return json.RawMessage(`{"status":"Unlocked"}`)
	case ocpp.ActionGetDiagnostics:
		return json.RawMessage(`{"fileName":"diagnostics.zip"}`)
	case ocpp.ActionUpdateFirmware:
		return json.RawMessage(`{}`)
	case ocpp.ActionGetConfiguration:
		return json.RawMessage(`{"configurationKey":[{"key":"HeartbeatInterval","readonly":false,"value":"300"}]}`)
	case ocpp.ActionGetLocalListVersion:
		return json.RawMessage(`{"listVersion":1}`)
	default:
		return json.RawMessage(`{"status":"Accepted"}`)
	}
}

// Accept answers every call with DefaultResult.
var Accept = ResponderFunc(func(_ string, action ocpp.Action) Reply {
	return Reply{Result: DefaultResult(action)}
})

// RandomResponder accepts calls after Delay, dropping a share of them and
// faulting another share.
type RandomResponder struct {
	Delay     time.Duration
	DropRate  float64
	FaultRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomResponder returns a RandomResponder seeded with seed.
func NewRandomResponder(delay time.Duration, dropRate, faultRate float64, seed int64) *RandomResponder {
	return &RandomResponder{
		Delay:     delay,
		DropRate:  dropRate,
		FaultRate: faultRate,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Reply implements Responder.
func (r *RandomResponder) Reply(_ string, action ocpp.Action) Reply {
	r.mu.Lock()
	p := r.rng.Float64()
	r.mu.Unlock()
	switch {
	case p < r.DropRate:
		return Reply{Drop: true}
	case p < r.DropRate+r.FaultRate:
		return Reply{
			FaultCode:    string(ocpp.FaultInternalError),
			FaultMessage: "simulated failure",
			Delay:        r.Delay,
		}
	default:
		return Reply{Result: DefaultResult(action), Delay: r.Delay}
	}
}

// Script answers from a fixed table keyed by charge point, falling back to
// Fallback, or Accept when unset.
type Script struct {
	Replies  map[string]Reply
	Fallback Responder
}

// Reply implements Responder.
func (s Script) Reply(chargeBoxID string, action ocpp.Action) Reply {
	if r, ok := s.Replies[chargeBoxID]; ok {
		return r
	}
	if s.Fallback != nil {
		return s.Fallback.Reply(chargeBoxID, action)
	}
	return Accept.Reply(chargeBoxID, action)
}
