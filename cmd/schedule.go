package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adstia/call-tagging/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the cron scheduler that fires passes inside the operating window",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("schedule"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runner, err := newRunner(st)
		if err != nil {
			return err
		}

		sched, err := scheduler.New(scheduler.Config{
			CronSpec:    cfg.Scheduler.CronSpec,
			Timezone:    cfg.Scheduler.Timezone,
			WindowStart: cfg.Scheduler.WindowStart,
			WindowEnd:   cfg.Scheduler.WindowEnd,
		}, nil, func(ctx context.Context) error {
			_, err := runner.Run(ctx)
			return err
		})
		if err != nil {
			return err
		}

		if err := sched.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		zap.L().Info("scheduler shutting down")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
