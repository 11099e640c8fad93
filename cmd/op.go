package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppfleet/app"
	"github.com/kilianp07/ocppfleet/config"
	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/core/task"
)

var (
	opWait    time.Duration
	opDryRun  bool
	opPayload string
)

var opCmd = &cobra.Command{
	Use:   "op <action> <charge_box_id>...",
	Short: "Send one OCPP command to a set of charge points",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runOp,
}

func init() {
	opCmd.Flags().DurationVar(&opWait, "wait", 2*time.Minute, "maximum time to wait for every charge point")
	opCmd.Flags().BoolVar(&opDryRun, "dry-run", false, "answer calls with the in-process simulator")
	opCmd.Flags().StringVar(&opPayload, "payload", "", "JSON request payload")
	rootCmd.AddCommand(opCmd)
}

func runOp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.API.Address = config.APIDisabled
	if opDryRun {
		cfg.Gateway = config.GatewaySimulated
	}
	var payload json.RawMessage
	if opPayload != "" {
		if !json.Valid([]byte(opPayload)) {
			return fmt.Errorf("payload is not valid JSON")
		}
		payload = json.RawMessage(opPayload)
	}

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Dispatch.ExecutorConfig().ShutdownGrace+closeSlack)
		defer cancel()
		if err := svc.Close(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "service close: %v\n", err)
		}
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), opWait)
	defer cancel()
	id, err := svc.Dispatch.StartOperation(ctx, ocpp.Action(args[0]), args[1:], payload)
	if err != nil {
		return err
	}
	snap, err := svc.Dispatch.AwaitOperation(ctx, id)
	if err != nil {
		return err
	}
	printSnapshot(cmd.OutOrStdout(), snap)
	if !snap.Complete {
		return fmt.Errorf("operation %s still pending after %s", id, opWait)
	}
	return nil
}

func printSnapshot(w io.Writer, snap task.Snapshot) {
	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("CHARGE BOX", "OUTCOME", "RESULT")
	for _, t := range snap.Targets {
		table.AddRow(t.Target, t.Outcome.Kind.String(), describe(t.Outcome))
	}
	fmt.Fprintf(w, "%s %s\n", snap.Operation, snap.ID)
	fmt.Fprintln(w, table)
}

func describe(o task.Outcome) string {
	switch o.Kind {
	case task.Success:
		return o.Value
	case task.Fault:
		if o.Message == "" {
			return o.Code
		}
		return o.Code + ": " + o.Message
	default:
		return o.Message
	}
}
