package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppfleet/config"
	"github.com/kilianp07/ocppfleet/core/oplog"
	"github.com/kilianp07/ocppfleet/pkg/export"
)

var (
	logsFormat string
	logsSince  time.Duration
	logsCBID   string
	logsAction string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Export completed operations from the operation log",
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().StringVarP(&logsFormat, "format", "o", "json", "output format: json or csv")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "only operations started within this duration")
	logsCmd.Flags().StringVar(&logsCBID, "charge-box-id", "", "only operations targeting this charge point")
	logsCmd.Flags().StringVar(&logsAction, "action", "", "only operations of this action")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := oplog.Open(cfg.Oplog)
	if err != nil {
		return fmt.Errorf("oplog: %w", err)
	}
	if store == nil {
		return fmt.Errorf("operation log is disabled")
	}
	defer store.Close()

	q := oplog.Query{ChargeBoxID: logsCBID, Action: logsAction}
	if logsSince > 0 {
		q.Start = time.Now().Add(-logsSince)
	}
	records, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	return export.Write(cmd.OutOrStdout(), logsFormat, records)
}
