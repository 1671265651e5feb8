package cmd

import (
	"github.com/spf13/cobra"
	"go.treeherder.org/infra/go/metrics2"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/frontend"
)

func newFrontendCmd() *cobra.Command {
	var flags config.FrontendFlags
	cmd := &cobra.Command{
		Use:   "frontend",
		Short: "Serve the sheriff REST API.",
		Args:  cobra.NoArgs,
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
			f, err := frontend.New(ctx, &flags, instanceConfig)
			if err != nil {
				return failure(err)
			}
			sklog.Infof("Serving on %s", flags.Port)
			return failure(f.Serve(ctx))
		},
	}
	flags.Register(cmd.Flags())
	return cmd
}
