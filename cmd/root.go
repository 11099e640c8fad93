package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppfleet/app"
	"github.com/kilianp07/ocppfleet/config"
)

// closeSlack bounds the teardown that follows the executor grace period.
const closeSlack = 10 * time.Second

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "ocppfleet",
	Short:        "OCPP charge point fleet command dispatcher",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	runErr := svc.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Dispatch.ExecutorConfig().ShutdownGrace+closeSlack)
	defer cancel()
	if err := svc.Close(closeCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("service close: %w", err)
	}
	return runErr
}
