// Package scenarios replays scripted fleet behaviour against the dispatch
// service and checks the resulting outcome counts.
package scenarios

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/infra/sim"
)

// errUnreachable is returned by the gateway for charge points marked unreachable.
var errUnreachable = errors.New("charge point unreachable")

// ChargePointDef scripts how one charge point answers every call.
type ChargePointDef struct {
	ID string `yaml:"id"`
	// Result is the raw JSON confirmation. Empty uses the action default.
	Result       string `yaml:"result,omitempty"`
	Fault        string `yaml:"fault,omitempty"`
	FaultMessage string `yaml:"fault_message,omitempty"`
	Drop         bool   `yaml:"drop,omitempty"`
	Unreachable  bool   `yaml:"unreachable,omitempty"`
	DelayMS      int    `yaml:"delay_ms,omitempty"`
}

// OperationDef is one operation of a scenario and its expected counts keyed
// by outcome name (success, fault, transport_error, timed_out).
type OperationDef struct {
	Action       string         `yaml:"action"`
	ChargeBoxIDs []string       `yaml:"charge_box_ids"`
	Payload      string         `yaml:"payload,omitempty"`
	Expected     map[string]int `yaml:"expected"`
}

type Scenario struct {
	Name           string           `yaml:"name"`
	Description    string           `yaml:"description,omitempty"`
	Workers        int              `yaml:"workers,omitempty"`
	TimeoutSeconds int              `yaml:"timeout_seconds,omitempty"`
	ChargePoints   []ChargePointDef `yaml:"charge_points"`
	Operations     []OperationDef   `yaml:"operations"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks that the scenario is runnable.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return errors.New("scenario name is required")
	}
	if len(sc.Operations) == 0 {
		return errors.New("scenario has no operations")
	}
	for _, cp := range sc.ChargePoints {
		if cp.Result != "" && !json.Valid([]byte(cp.Result)) {
			return fmt.Errorf("charge point %s: result is not valid JSON", cp.ID)
		}
	}
	for i, op := range sc.Operations {
		if op.Payload != "" && !json.Valid([]byte(op.Payload)) {
			return fmt.Errorf("operation %d: payload is not valid JSON", i)
		}
	}
	return nil
}

// Responder builds the simulated fleet. Charge points not listed accept.
func (sc *Scenario) Responder() sim.Responder {
	defs := make(map[string]ChargePointDef, len(sc.ChargePoints))
	for _, cp := range sc.ChargePoints {
		defs[cp.ID] = cp
	}
	return sim.ResponderFunc(func(id string, action ocpp.Action) sim.Reply {
		cp, ok := defs[id]
		if !ok {
			return sim.Accept.Reply(id, action)
		}
		return cp.reply(action)
	})
}

func (cp ChargePointDef) reply(action ocpp.Action) sim.Reply {
	r := sim.Reply{
		FaultCode:    cp.Fault,
		FaultMessage: cp.FaultMessage,
		Drop:         cp.Drop,
		Delay:        time.Duration(cp.DelayMS) * time.Millisecond,
	}
	if cp.Unreachable {
		r.Err = errUnreachable
	}
	if cp.Result != "" {
		r.Result = json.RawMessage(cp.Result)
	} else {
		r.Result = sim.DefaultResult(action)
	}
	return r
}
