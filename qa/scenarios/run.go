package scenarios

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/kilianp07/ocppfleet/core/dispatch"
	"github.com/kilianp07/ocppfleet/core/logger"
	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/core/task"
	"github.com/kilianp07/ocppfleet/infra/sim"
)

// Result is the outcome of one scenario operation.
type Result struct {
	Scenario string
	Action   string
	TaskID   task.ID
	Want     map[string]int
	Got      map[string]int
}

// Pass reports whether the observed counts match the expected ones. Outcome
// kinds absent from the expectation must not occur.
func (r Result) Pass() bool { return maps.Equal(r.Want, r.Got) }

// Run executes every operation of sc in order against a simulated fleet.
func Run(ctx context.Context, sc *Scenario) ([]Result, error) {
	cfg := dispatch.Config{Workers: sc.Workers, DefaultTimeoutSeconds: sc.TimeoutSeconds}
	cfg.SetDefaults()
	rules := ocpp.DefaultRules()
	exec := dispatch.NewExecutor(cfg.ExecutorConfig(), logger.Nop{}, nil)
	svc, err := dispatch.NewService(cfg, rules, exec, sim.NewGateway(sc.Responder(), rules), nil, nil, logger.Nop{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = svc.Shutdown(context.Background()) }()

	results := make([]Result, 0, len(sc.Operations))
	for _, op := range sc.Operations {
		var payload json.RawMessage
		if op.Payload != "" {
			payload = json.RawMessage(op.Payload)
		}
		id, err := svc.StartOperation(ctx, ocpp.Action(op.Action), op.ChargeBoxIDs, payload)
		if err != nil {
			return results, fmt.Errorf("%s %s: %w", sc.Name, op.Action, err)
		}
		snap, err := svc.AwaitOperation(ctx, id)
		if err != nil {
			return results, err
		}
		if !snap.Complete {
			return results, fmt.Errorf("%s %s: %w", sc.Name, op.Action, ctx.Err())
		}
		results = append(results, Result{
			Scenario: sc.Name,
			Action:   op.Action,
			TaskID:   id,
			Want:     nonZero(op.Expected),
			Got:      countsByName(snap.Counts()),
		})
	}
	return results, nil
}

func countsByName(counts map[task.OutcomeKind]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, n := range counts {
		if n > 0 {
			out[k.String()] = n
		}
	}
	return out
}

func nonZero(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, n := range m {
		if n > 0 {
			out[k] = n
		}
	}
	return out
}
