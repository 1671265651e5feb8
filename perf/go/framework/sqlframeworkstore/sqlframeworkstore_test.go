package sqlframeworkstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/sql/sqltest"
	"go.treeherder.org/infra/perf/go/types"
)

func setUp(t *testing.T) (context.Context, *FrameworkStore) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	return ctx, New(sqltest.NewCockroachDBForTests(t, "frameworkstore"))
}

func TestPut_GetRoundTrip(t *testing.T) {
	ctx, s := setUp(t)
	id, err := s.Put(ctx, types.Framework{Name: "talos", Enabled: true, LowerIsBetter: true})
	require.NoError(t, err)

	f, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.Framework{ID: id, Name: "talos", Enabled: true, LowerIsBetter: true}, *f)
}

func TestPut_SameName_UpdatesPolarity(t *testing.T) {
	ctx, s := setUp(t)
	id, err := s.Put(ctx, types.Framework{Name: "browsertime", Enabled: true, LowerIsBetter: true})
	require.NoError(t, err)
	_, err = s.Put(ctx, types.Framework{Name: "browsertime", Enabled: false, LowerIsBetter: false})
	require.NoError(t, err)

	f, err := s.GetByName(ctx, "browsertime")
	require.NoError(t, err)
	assert.Equal(t, id, f.ID)
	assert.False(t, f.Enabled)
	assert.False(t, f.LowerIsBetter)
}

func TestGetByName_Unknown_ReturnsUnknownFramework(t *testing.T) {
	ctx, s := setUp(t)
	_, err := s.GetByName(ctx, "nope")
	require.ErrorIs(t, err, perferrors.ErrUnknownFramework)
}

func TestGet_Unknown_ReturnsNotFound(t *testing.T) {
	ctx, s := setUp(t)
	_, err := s.Get(ctx, 99)
	require.ErrorIs(t, err, perferrors.ErrNotFound)
}

func TestList_Empty_ReturnsEmptySlice(t *testing.T) {
	ctx, s := setUp(t)
	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
