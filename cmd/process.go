package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	processBatch int
	processLimit int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one classification pass over unprocessed calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("process"); err != nil {
			return err
		}
		if processBatch > 0 {
			cfg.Pipeline.BatchSize = processBatch
		}
		if processLimit > 0 {
			cfg.Pipeline.TotalLimit = processLimit
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

		res, err := runner.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("pass finished (%s): %d selected, %d saved, %d failed, %d skipped in %d rounds over %s\n",
			res.Stop, res.Selected, res.Saved, res.Failed, res.SkippedNoPrompt, res.Rounds, res.Elapsed.Round(time.Millisecond))
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processBatch, "batch", 0, "calls per round (default from config)")
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "max calls this pass (default from config)")
	rootCmd.AddCommand(processCmd)
}
