package cmd

import (
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppfleet/config"
	"github.com/kilianp07/ocppfleet/core/ocpp"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List supported OCPP actions and their call timeouts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		policy := cfg.Dispatch.TimeoutPolicy()
		table := uitable.New()
		table.AddRow("ACTION", "TIMEOUT")
		for _, a := range ocpp.DefaultRules().Actions() {
			table.AddRow(string(a), policy.For(a).String())
		}
		fmt.Fprintln(cmd.OutOrStdout(), table)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(actionsCmd)
}
