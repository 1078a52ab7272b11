package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adstia/call-tagging/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "call-tagging",
	Short: "Call transcript classification service",
	Long:  "Classifies inbound call transcripts into a tiered tag taxonomy via OpenRouter, persists results to Postgres, and serves an operator API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
