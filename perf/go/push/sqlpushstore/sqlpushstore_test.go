package sqlpushstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/repository/sqlrepositorystore"
	"go.treeherder.org/infra/perf/go/sql/sqltest"
	"go.treeherder.org/infra/perf/go/types"
)

var ts = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func setUp(t *testing.T) (context.Context, *PushStore, types.RepositoryID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	db := sqltest.NewCockroachDBForTests(t, "pushstore")
	repoID, err := sqlrepositorystore.New(db).Put(ctx, types.Repository{Name: "autoland", PerformanceAlertsEnabled: true})
	require.NoError(t, err)
	return ctx, New(db), repoID
}

func TestPut_NewRevision_Get(t *testing.T) {
	ctx, s, repoID := setUp(t)
	id, err := s.Put(ctx, repoID, "abcdef", ts)
	require.NoError(t, err)

	p, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.Push{ID: id, RepositoryID: repoID, Revision: "abcdef", Time: ts}, *p)
}

func TestPut_SameRevisionTwice_ReturnsSameID(t *testing.T) {
	ctx, s, repoID := setUp(t)
	id, err := s.Put(ctx, repoID, "abcdef", ts)
	require.NoError(t, err)
	id2, err := s.Put(ctx, repoID, "abcdef", ts.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	p, err := s.GetByRevision(ctx, repoID, "abcdef")
	require.NoError(t, err)
	assert.Equal(t, ts, p.Time)
}

func TestGet_Unknown_ReturnsNotFound(t *testing.T) {
	ctx, s, repoID := setUp(t)
	_, err := s.Get(ctx, 42)
	require.ErrorIs(t, err, perferrors.ErrNotFound)
	_, err = s.GetByRevision(ctx, repoID, "missing")
	require.ErrorIs(t, err, perferrors.ErrNotFound)
}
