package sqldatumstore

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/perf/go/datum"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/sql/sqltest"
	"go.treeherder.org/infra/perf/go/types"
)

var start = time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	store  *DatumStore
	sig    types.SignatureID
	other  types.SignatureID
	pushes []types.Push
}

func setUp(t *testing.T) fixture {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	db := sqltest.NewCockroachDBForTests(t, "datumstore")
	repo := sqltest.InsertRepository(t, db, "autoland", true)
	fw := sqltest.InsertFramework(t, db, "talos", true)
	return fixture{
		ctx:    ctx,
		store:  New(db),
		sig:    sqltest.InsertSignature(t, db, repo, fw, "aaaa"),
		other:  sqltest.InsertSignature(t, db, repo, fw, "bbbb"),
		pushes: sqltest.InsertPushes(t, db, repo, start, 5),
	}
}

func (f fixture) datum(push int, job types.JobID, value float64) datum.Datum {
	return datum.Datum{
		SignatureID:   f.sig,
		PushID:        f.pushes[push].ID,
		JobID:         job,
		Value:         value,
		PushTimestamp: f.pushes[push].Time,
	}
}

func TestIngest_SameDatumTwice_Idempotent(t *testing.T) {
	f := setUp(t)
	require.NoError(t, f.store.Ingest(f.ctx, f.datum(0, 1, 10)))
	require.NoError(t, f.store.Ingest(f.ctx, f.datum(0, 1, 10)))

	s, err := f.store.Series(f.ctx, f.sig, 100)
	require.NoError(t, err)
	assert.Equal(t, []datum.Datum{f.datum(0, 1, 10)}, s)
}

func TestIngest_SameJobDifferentValue_ConflictingDatum(t *testing.T) {
	f := setUp(t)
	require.NoError(t, f.store.Ingest(f.ctx, f.datum(0, 1, 10)))
	err := f.store.Ingest(f.ctx, f.datum(0, 1, 11))
	require.ErrorIs(t, err, perferrors.ErrConflictingDatum)
	require.ErrorIs(t, err, perferrors.ErrValidation)

	s, err := f.store.Series(f.ctx, f.sig, 100)
	require.NoError(t, err)
	require.Len(t, s, 1)
	assert.Equal(t, 10.0, s[0].Value)
}

func TestIngest_NaN_ValidationError(t *testing.T) {
	f := setUp(t)
	require.ErrorIs(t, f.store.Ingest(f.ctx, f.datum(0, 1, math.NaN())), perferrors.ErrValidation)
	require.ErrorIs(t, f.store.Ingest(f.ctx, f.datum(0, 2, math.Inf(1))), perferrors.ErrValidation)
}

func TestSeries_ReturnsMostRecentAscending(t *testing.T) {
	f := setUp(t)
	// Ingested out of order, with two jobs on push 2.
	for _, d := range []datum.Datum{
		f.datum(3, 4, 4),
		f.datum(0, 1, 1),
		f.datum(2, 6, 3.5),
		f.datum(2, 3, 3),
		f.datum(1, 2, 2),
		f.datum(4, 5, 5),
	} {
		require.NoError(t, f.store.Ingest(f.ctx, d))
	}

	s, err := f.store.Series(f.ctx, f.sig, 4)
	require.NoError(t, err)
	assert.Equal(t, []datum.Datum{
		f.datum(2, 3, 3),
		f.datum(2, 6, 3.5),
		f.datum(3, 4, 4),
		f.datum(4, 5, 5),
	}, s)
}

func TestSeries_NonPositiveMax_ValidationError(t *testing.T) {
	f := setUp(t)
	_, err := f.store.Series(f.ctx, f.sig, 0)
	require.ErrorIs(t, err, perferrors.ErrValidation)
}

func TestSignaturesForPush(t *testing.T) {
	f := setUp(t)
	require.NoError(t, f.store.Ingest(f.ctx, f.datum(1, 1, 1)))
	d := f.datum(1, 2, 1)
	d.SignatureID = f.other
	require.NoError(t, f.store.Ingest(f.ctx, d))
	require.NoError(t, f.store.Ingest(f.ctx, f.datum(1, 3, 1)))

	sigs, err := f.store.SignaturesForPush(f.ctx, f.pushes[1].ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.SignatureID{f.sig, f.other}, sigs)

	sigs, err = f.store.SignaturesForPush(f.ctx, f.pushes[4].ID)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}
