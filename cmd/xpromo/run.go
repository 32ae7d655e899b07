package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"xpromo/pkg/logger"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler daemon that delivers scheduled replies",
	Long: `Run the delayed-job scheduler in the foreground.

The scheduler sweeps the job store on a fixed interval and fires due
reply jobs through the bot-pool dispatcher, bounded by the configured
concurrency. Jobs interrupted by a previous crash are returned to
pending on startup. Stop with Ctrl-C; in-flight jobs finish first.`,
	Example: `  xpromo run`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
		logger.LogComponentStart("scheduler", map[string]interface{}{
			"process_every":   a.cfg.Scheduler.ProcessEvery.String(),
			"max_concurrency": a.cfg.Scheduler.MaxConcurrency,
		})
		fmt.Printf("Scheduler running (sweep every %s, max %d concurrent jobs). Ctrl-C to stop.\n",
			a.cfg.Scheduler.ProcessEvery, a.cfg.Scheduler.MaxConcurrency)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		sig := <-sigCh

		a.log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
		a.scheduler.Stop()
		logger.LogComponentStop("scheduler", sig.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
