package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adstia/call-tagging/internal/api"
	"github.com/adstia/call-tagging/internal/scheduler"
)

var (
	servePort      int
	serveScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operator HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
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

		guard := &scheduler.Guard{}
		if serveScheduler {
			if err := cfg.Validate("schedule"); err != nil {
				return err
			}
			sched, err := scheduler.New(scheduler.Config{
				CronSpec:    cfg.Scheduler.CronSpec,
				Timezone:    cfg.Scheduler.Timezone,
				WindowStart: cfg.Scheduler.WindowStart,
				WindowEnd:   cfg.Scheduler.WindowEnd,
			}, guard, func(ctx context.Context) error {
				_, err := runner.Run(ctx)
				return err
			})
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.NewServer(st, runner, guard).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveScheduler, "with-scheduler", false, "also run the cron scheduler in-process")
	rootCmd.AddCommand(serveCmd)
}
