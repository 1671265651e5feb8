// Package sqltest creates throwaway CockroachDB databases for tests.
package sqltest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/go/sql/pool"
	"go.treeherder.org/infra/go/sql/pool/wrapper/timeout"
	"go.treeherder.org/infra/go/testutils/unittest"
	perfsql "go.treeherder.org/infra/perf/go/sql"
)

const setupTimeout = time.Minute

// NewCockroachDBForTests creates a new temporary CockroachDB database with
// perfsql.Schema applied and returns a connection pool to it. The database
// is dropped when the test ends.
//
// The databaseName is a prefix, a random suffix is appended so that tests in
// different packages that run in parallel against the same CockroachDB
// instance never share a database.
func NewCockroachDBForTests(t *testing.T, databaseName string) pool.Pool {
	unittest.RequiresCockroachDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	host := os.Getenv(unittest.CockroachDBEmulatorHostEnvVar)
	databaseName = databaseName + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]

	admin, err := pgxpool.Connect(ctx, fmt.Sprintf("postgresql://root@%s/defaultdb?sslmode=disable", host))
	require.NoError(t, err)
	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", databaseName))
	require.NoError(t, err)

	conn, err := pgxpool.Connect(ctx, fmt.Sprintf("postgresql://root@%s/%s?sslmode=disable", host, databaseName))
	require.NoError(t, err)
	_, err = conn.Exec(ctx, perfsql.Schema)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
		defer cancel()
		_, err := admin.Exec(ctx, fmt.Sprintf("DROP DATABASE %s CASCADE", databaseName))
		assert.NoError(t, err)
		admin.Close()
	})
	return timeout.New(conn, false)
}
