package sqltest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/go/sql/pool"
	"go.treeherder.org/infra/perf/go/types"
)

// The fixtures below write rows with plain SQL so that the tests of any store
// can use them without importing another store.

func fixtureContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), setupTimeout)
}

// InsertRepository adds a repository and returns its id.
func InsertRepository(t *testing.T, db pool.Pool, name string, alertsEnabled bool) types.RepositoryID {
	ctx, cancel := fixtureContext()
	defer cancel()
	var id types.RepositoryID
	err := db.QueryRow(ctx, `INSERT INTO Repository (name, performance_alerts_enabled) VALUES ($1, $2) RETURNING id`,
		name, alertsEnabled).Scan(&id)
	require.NoError(t, err)
	return id
}

// InsertFramework adds an enabled framework and returns its id.
func InsertFramework(t *testing.T, db pool.Pool, name string, lowerIsBetter bool) types.FrameworkID {
	ctx, cancel := fixtureContext()
	defer cancel()
	var id types.FrameworkID
	err := db.QueryRow(ctx, `INSERT INTO Framework (name, enabled, lower_is_better) VALUES ($1, true, $2) RETURNING id`,
		name, lowerIsBetter).Scan(&id)
	require.NoError(t, err)
	return id
}

// InsertPushes adds n pushes to the repository, one hour apart starting at
// start, and returns them in order.
func InsertPushes(t *testing.T, db pool.Pool, repositoryID types.RepositoryID, start time.Time, n int) []types.Push {
	ctx, cancel := fixtureContext()
	defer cancel()
	ret := make([]types.Push, n)
	for i := range ret {
		p := types.Push{
			RepositoryID: repositoryID,
			Revision:     fmt.Sprintf("rev%04d", i),
			Time:         start.Add(time.Duration(i) * time.Hour).UTC(),
		}
		err := db.QueryRow(ctx, `INSERT INTO Push (repository_id, revision, time) VALUES ($1, $2, $3) RETURNING id`,
			p.RepositoryID, p.Revision, p.Time).Scan(&p.ID)
		require.NoError(t, err)
		ret[i] = p
	}
	return ret
}

// InsertSignature adds a suite level signature with the given hash and
// returns its id.
func InsertSignature(t *testing.T, db pool.Pool, repositoryID types.RepositoryID, frameworkID types.FrameworkID, hash string) types.SignatureID {
	ctx, cancel := fixtureContext()
	defer cancel()
	var id types.SignatureID
	err := db.QueryRow(ctx, `
		INSERT INTO Signature (repository_id, framework_id, signature_hash, suite, platform, option_collection_hash, last_updated)
		VALUES ($1, $2, $3, $3, 'linux64', '', now())
		RETURNING id`, repositoryID, frameworkID, hash).Scan(&id)
	require.NoError(t, err)
	return id
}

// InsertDatum adds one datum.
func InsertDatum(t *testing.T, db pool.Pool, signatureID types.SignatureID, p types.Push, jobID types.JobID, value float64) {
	ctx, cancel := fixtureContext()
	defer cancel()
	_, err := db.Exec(ctx, `
		INSERT INTO Datum (signature_id, job_id, push_id, value, push_timestamp)
		VALUES ($1, $2, $3, $4, $5)`, signatureID, jobID, p.ID, value, p.Time)
	require.NoError(t, err)
}
