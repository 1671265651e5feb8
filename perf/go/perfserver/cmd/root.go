package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/go/sklog/stdlogging"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/config/validate"
)

// Exit codes of perfserver.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitMisuse  = 2
)

// exitError carries the exit code of a failed sub-command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func misuse(err error) error {
	return &exitError{code: ExitMisuse, err: err}
}

func failure(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: ExitFailure, err: err}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "perfserver",
		Short: "The performance alerting service.",
		Long: `The performance alerting service.

The different parts are run as sub-commands, for example to run the task
worker:

	perfserver worker --config_filename=instance_config.json ...

`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return misuse(err)
	})
	root.AddCommand(newFrontendCmd(), newWorkerCmd(), newDatabaseCmd())
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintln(os.Stderr, err)
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	// Errors that don't come from a sub-command are cobra rejecting the
	// command line.
	return ExitMisuse
}

// setupLogging logs to stdout at the requested level.
func setupLogging(logDebug bool) {
	sklog.SetLogger(stdlogging.New(os.Stdout))
	sklog.SetDebug(logDebug)
}

// loadConfig reads and validates the instance config. Any problem with it is
// a misuse.
func loadConfig(filename string) (*config.InstanceConfig, error) {
	instanceConfig, schemaViolations, err := validate.InstanceConfigFromFile(filename)
	if err != nil {
		for _, v := range schemaViolations {
			sklog.Error(v)
		}
		return nil, misuse(skerr.Wrap(err))
	}
	return instanceConfig, nil
}

func logFlags(cmd *cobra.Command) {
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		sklog.Infof("Flags: --%s=%v", f.Name, f.Value)
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
