package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/go/sql/pool"
	"go.treeherder.org/infra/go/sql/schema"
	"go.treeherder.org/infra/perf/go/builders"
	"go.treeherder.org/infra/perf/go/config"
	perfsql "go.treeherder.org/infra/perf/go/sql"
)

func newDatabaseCmd() *cobra.Command {
	var flags config.DatabaseFlags
	cmd := &cobra.Command{
		Use:   "database",
		Short: "Manage the database schema.",
	}

	connect := func(ctx context.Context) (pool.Pool, error) {
		setupLogging(false)
		instanceConfig, err := loadConfig(flags.ConfigFilename)
		if err != nil {
			return nil, err
		}
		db, err := builders.NewDBPoolFromConfig(ctx, instanceConfig)
		return db, failure(err)
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create every table. Existing tables are left alone.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := connect(ctx)
			if err != nil {
				return err
			}
			if _, err := db.Exec(ctx, perfsql.Schema); err != nil {
				return failure(skerr.Wrapf(err, "apply schema"))
			}
			sklog.Info("Schema applied.")
			return nil
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Fail if any table is missing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := connect(ctx)
			if err != nil {
				return err
			}
			missing, err := missingTables(ctx, db)
			if err != nil {
				return failure(err)
			}
			if len(missing) > 0 {
				return failure(skerr.Fmt("missing tables: %s", strings.Join(missing, ", ")))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}

	flags.Register(cmd.PersistentFlags())
	cmd.AddCommand(initCmd, checkCmd)
	return cmd
}

func missingTables(ctx context.Context, db pool.Pool) ([]string, error) {
	desc, err := schema.GetDescription(ctx, db, perfsql.Tables{})
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return schema.MissingTables(desc, perfsql.Tables{}), nil
}
