package cmd

import (
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppfleet/qa/scenarios"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file.yaml>...",
	Short: "Replay scripted fleet scenarios against the simulated fleet",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScenarios,
}

func init() {
	rootCmd.AddCommand(scenarioCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	table := uitable.New()
	table.AddRow("SCENARIO", "ACTION", "EXPECTED", "GOT", "PASS")
	failed := 0
	for _, path := range args {
		sc, err := scenarios.Load(path)
		if err != nil {
			return err
		}
		results, err := scenarios.Run(cmd.Context(), sc)
		if err != nil {
			return err
		}
		for _, r := range results {
			if !r.Pass() {
				failed++
			}
			table.AddRow(r.Scenario, r.Action, fmt.Sprint(r.Want), fmt.Sprint(r.Got), r.Pass())
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	if failed > 0 {
		return fmt.Errorf("%d scenario operations failed", failed)
	}
	return nil
}
