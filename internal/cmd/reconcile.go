package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentum-mod/livestreams/internal/cmdutil"
)

func ReconcileCmd(ctx context.Context, debug *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Args:  cobra.ExactArgs(0),
		Short: "Runs a single reconciliation pass and exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cmdutil.NewLogger(*debug)
			defer func() { _ = logger.Sync() }()

			svc, err := newServices(ctx, logger)
			if err != nil {
				logger.Error("failed to initialise", zap.Error(err))
				return err
			}
			defer svc.Close()

			if err := svc.engine.Connect(ctx); err != nil {
				logger.Error("failed to connect", zap.Error(err))
				return err
			}

			out, err := svc.engine.Reconcile(ctx)
			if err != nil {
				return err
			}

			logger.Info("reconciliation pass complete",
				zap.String("pass#id", out.PassID),
				zap.Int("live", out.Live),
				zap.Int("posted", out.Posted),
				zap.Int("updated", out.Updated),
				zap.Int("deleted", out.Deleted),
				zap.Errors("errs", out.Errors),
			)
			return nil
		},
	}

	return cmd
}
