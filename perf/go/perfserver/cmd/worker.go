package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.treeherder.org/infra/go/httputils"
	"go.treeherder.org/infra/go/metrics2"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/worker"
	"golang.org/x/sync/errgroup"
)

func newWorkerCmd() *cobra.Command {
	var flags config.WorkerFlags
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the ingest and detect task worker.",
		Long: `Consumes perf.ingest and perf.detect tasks until interrupted.

Task failures are reported through the queue, so the worker only exits
with an error if it can't start or a subscription fails.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(flags.LogDebug)
			instanceConfig, err := loadConfig(flags.ConfigFilename)
			if err != nil {
				return err
			}
			logFlags(cmd)
			metrics2.InitPrometheus(flags.PromPort)

			ctx, cancel := signalContext()
			defer cancel()
			w, err := worker.New(ctx, &flags, instanceConfig)
			if err != nil {
				return failure(err)
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return httputils.RunHealthCheckServer(ctx, flags.HealthPort)
			})
			g.Go(func() error {
				return w.Run(ctx)
			})
			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			sklog.Info("Worker stopped.")
			return failure(err)
		},
	}
	flags.Register(cmd.Flags())
	return cmd
}
