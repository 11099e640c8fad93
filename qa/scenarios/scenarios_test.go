package scenarios

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/ocppfleet/core/ocpp"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenario files")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			results, err := Run(ctx, sc)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if len(results) != len(sc.Operations) {
				t.Fatalf("expected %d results, got %d", len(sc.Operations), len(results))
			}
			for _, r := range results {
				if !r.Pass() {
					t.Errorf("%s %s: want %v, got %v", r.Scenario, r.Action, r.Want, r.Got)
				}
			}
		})
	}
}

func TestRun_UnsupportedAction(t *testing.T) {
	sc := &Scenario{
		Name:       "bad",
		Operations: []OperationDef{{Action: "Heartbeat", ChargeBoxIDs: []string{"CP1"}}},
	}
	if _, err := Run(context.Background(), sc); err == nil {
		t.Fatal("expected error for unsupported action")
	}
}

func TestResponder_DefaultsToAccept(t *testing.T) {
	sc := &Scenario{ChargePoints: []ChargePointDef{{ID: "CP1", Fault: "InternalError"}}}
	r := sc.Responder()
	if got := r.Reply("CP1", ocpp.ActionReset); got.FaultCode != "InternalError" {
		t.Fatalf("expected scripted fault, got %+v", got)
	}
	if got := r.Reply("CP9", ocpp.ActionReset); got.FaultCode != "" || len(got.Result) == 0 {
		t.Fatalf("expected default accept, got %+v", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("no-file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	cases := map[string]string{
		"syntax":      ":",
		"no name":     "operations: [{action: Reset, charge_box_ids: [CP1]}]",
		"no ops":      "name: empty",
		"bad result":  "name: x\ncharge_points: [{id: CP1, result: '{nope'}]\noperations: [{action: Reset, charge_box_ids: [CP1]}]",
		"bad payload": "name: x\noperations: [{action: Reset, charge_box_ids: [CP1], payload: '[1,'}]",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected load error")
			}
		})
	}
}

func TestResultPass(t *testing.T) {
	r := Result{Want: map[string]int{"success": 1}, Got: map[string]int{"success": 1, "fault": 1}}
	if r.Pass() {
		t.Fatal("unexpected outcome kinds must fail the check")
	}
}
