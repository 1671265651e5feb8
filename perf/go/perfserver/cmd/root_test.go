package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/perf/go/sql/sqltest"
)

const missingConfig = "/this/file/does/not/exist.json"

func TestExecute_Help_ReturnsSuccess(t *testing.T) {
	assert.Equal(t, ExitSuccess, Execute([]string{"--help"}))
}

func TestExecute_Misuse_ReturnsTwo(t *testing.T) {
	for name, args := range map[string][]string{
		"unknown command":  {"nope"},
		"unknown flag":     {"frontend", "--no_such_flag"},
		"extra arguments":  {"worker", "extra"},
		"missing config":   {"frontend", "--config_filename", missingConfig},
		"database config":  {"database", "check", "--config_filename", missingConfig},
		"worker bad flags": {"worker", "--num_goroutines", "many"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, ExitMisuse, Execute(args))
		})
	}
}

func TestMissingTables_FullSchema_ReturnsNothing(t *testing.T) {
	db := sqltest.NewCockroachDBForTests(t, "perfserver")
	missing, err := missingTables(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, missing)
}
