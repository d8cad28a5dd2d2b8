package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentum-mod/livestreams/internal/api"
	"github.com/momentum-mod/livestreams/internal/cmdutil"
	"github.com/momentum-mod/livestreams/internal/monitor"
)

func MonitorCmd(ctx context.Context, debug *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Args:  cobra.ExactArgs(0),
		Short: "Polls for live streams and keeps the announcement channel up to date.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cmdutil.NewLogger(*debug)
			defer func() { _ = logger.Sync() }()

			svc, err := newServices(ctx, logger)
			if err != nil {
				logger.Error("failed to initialise", zap.Error(err))
				return err
			}
			defer svc.Close()

			sched := monitor.NewScheduler(logger, svc.engine, svc.cfg.UpdateInterval, monitor.WithNotifier(notifier(logger)))
			if err := sched.Start(ctx); err != nil {
				logger.Error("failed to start stream monitor", zap.Error(err))
				return err
			}
			defer sched.Stop()

			srv := api.NewAPI(logger, svc.statsd, sched, svc.engine, svc.registry, api.WithToken(svc.cfg.AdminToken)).Server(svc.cfg.AdminAddr)

			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("admin api stopped", zap.Error(err))
				}
			}()

			logger.Info("started admin api", zap.String("addr", svc.cfg.AdminAddr))

			<-ctx.Done()

			logger.Info("shutting down")

			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)

			return nil
		},
	}

	return cmd
}
