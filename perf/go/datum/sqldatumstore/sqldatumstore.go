// Package sqldatumstore implements datum.Store on CockroachDB.
package sqldatumstore

import (
	"context"
	"errors"
	"math"

	"github.com/jackc/pgx/v4"
	"go.opencensus.io/trace"
	"go.treeherder.org/infra/go/metrics2"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sql/pool"
	"go.treeherder.org/infra/perf/go/datum"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/types"
)

// statement is an SQL statement identifier.
type statement int

const (
	insert statement = iota
	readExisting
	series
	signaturesForPush
)

var statements = map[statement]string{
	insert: `
		INSERT INTO Datum (signature_id, job_id, push_id, value, push_timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (signature_id, job_id) DO NOTHING
		RETURNING signature_id`,
	readExisting: `
		SELECT push_id, value
		FROM Datum
		WHERE signature_id=$1 AND job_id=$2`,
	series: `
		SELECT signature_id, push_id, job_id, value, push_timestamp
		FROM (
			SELECT signature_id, push_id, job_id, value, push_timestamp
			FROM Datum
			WHERE signature_id=$1
			ORDER BY push_timestamp DESC, push_id DESC, job_id DESC
			LIMIT $2
		) AS recent
		ORDER BY push_timestamp ASC, push_id ASC, job_id ASC`,
	signaturesForPush: `
		SELECT DISTINCT signature_id
		FROM Datum
		WHERE push_id=$1
		ORDER BY signature_id`,
}

// DatumStore implements datum.Store.
type DatumStore struct {
	db pool.Pool

	ingested   metrics2.Counter
	duplicates metrics2.Counter
}

// New returns a new DatumStore.
func New(db pool.Pool) *DatumStore {
	return &DatumStore{
		db:         db,
		ingested:   metrics2.GetCounter("perf_datum_ingested"),
		duplicates: metrics2.GetCounter("perf_datum_duplicate"),
	}
}

// Ingest implements datum.Store.
func (s *DatumStore) Ingest(ctx context.Context, d datum.Datum) error {
	ctx, span := trace.StartSpan(ctx, "sqldatumstore.Ingest")
	defer span.End()

	if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
		return skerr.Wrapf(perferrors.ErrValidation, "value %v of job %d is not a finite number", d.Value, d.JobID)
	}
	var sigID types.SignatureID
	err := s.db.QueryRow(ctx, statements[insert], d.SignatureID, d.JobID, d.PushID, d.Value, d.PushTimestamp).Scan(&sigID)
	if err == nil {
		s.ingested.Inc(1)
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return skerr.Wrapf(err, "inserting datum for signature %d job %d", d.SignatureID, d.JobID)
	}

	// The (signature, job) pair already exists.
	var pushID types.PushID
	var value float64
	if err := s.db.QueryRow(ctx, statements[readExisting], d.SignatureID, d.JobID).Scan(&pushID, &value); err != nil {
		return skerr.Wrapf(err, "reading existing datum for signature %d job %d", d.SignatureID, d.JobID)
	}
	if value != d.Value || pushID != d.PushID {
		return skerr.Wrapf(perferrors.ErrConflictingDatum, "signature %d job %d has %v at push %d, got %v at push %d",
			d.SignatureID, d.JobID, value, pushID, d.Value, d.PushID)
	}
	s.duplicates.Inc(1)
	return nil
}

// Series implements datum.Store.
func (s *DatumStore) Series(ctx context.Context, signatureID types.SignatureID, maxPoints int) ([]datum.Datum, error) {
	ctx, span := trace.StartSpan(ctx, "sqldatumstore.Series")
	defer span.End()

	if maxPoints <= 0 {
		return nil, skerr.Wrapf(perferrors.ErrValidation, "maxPoints must be positive, got %d", maxPoints)
	}
	rows, err := s.db.Query(ctx, statements[series], signatureID, maxPoints)
	if err != nil {
		return nil, skerr.Wrapf(err, "reading series %d", signatureID)
	}
	defer rows.Close()
	ret := []datum.Datum{}
	for rows.Next() {
		var d datum.Datum
		if err := rows.Scan(&d.SignatureID, &d.PushID, &d.JobID, &d.Value, &d.PushTimestamp); err != nil {
			return nil, skerr.Wrap(err)
		}
		d.PushTimestamp = d.PushTimestamp.UTC()
		ret = append(ret, d)
	}
	return ret, skerr.Wrap(rows.Err())
}

// SignaturesForPush implements datum.Store.
func (s *DatumStore) SignaturesForPush(ctx context.Context, pushID types.PushID) ([]types.SignatureID, error) {
	rows, err := s.db.Query(ctx, statements[signaturesForPush], pushID)
	if err != nil {
		return nil, skerr.Wrapf(err, "reading signatures for push %d", pushID)
	}
	defer rows.Close()
	ret := []types.SignatureID{}
	for rows.Next() {
		var id types.SignatureID
		if err := rows.Scan(&id); err != nil {
			return nil, skerr.Wrap(err)
		}
		ret = append(ret, id)
	}
	return ret, skerr.Wrap(rows.Err())
}

// Confirm DatumStore implements datum.Store.
var _ datum.Store = (*DatumStore)(nil)
