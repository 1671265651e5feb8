// Package datum defines the append-only store of performance measurements.
package datum

import (
	"context"
	"time"

	"go.treeherder.org/infra/perf/go/changepoint"
	"go.treeherder.org/infra/perf/go/types"
)

// Datum is a single measurement of a series.
type Datum struct {
	SignatureID   types.SignatureID `json:"signature_id"`
	PushID        types.PushID      `json:"push_id"`
	JobID         types.JobID       `json:"job_id"`
	Value         float64           `json:"value"`
	PushTimestamp time.Time         `json:"push_timestamp"`
}

// Store persists data. There is no way to delete or change a datum.
type Store interface {
	// Ingest stores a datum. Ingesting the same (signature, job) twice with
	// the same value is a no-op, with a different value it fails with
	// perferrors.ErrConflictingDatum.
	Ingest(ctx context.Context, d Datum) error

	// Series returns the most recent maxPoints data of a signature, oldest
	// first. Ties in push timestamp are ordered by push id, then job id.
	Series(ctx context.Context, signatureID types.SignatureID, maxPoints int) ([]Datum, error)

	// SignaturesForPush returns the signatures that have data for the push.
	SignaturesForPush(ctx context.Context, pushID types.PushID) ([]types.SignatureID, error)
}

// ToSamples converts data into the input of changepoint.Collapse.
func ToSamples(data []Datum) []changepoint.Sample {
	ret := make([]changepoint.Sample, len(data))
	for i, d := range data {
		ret[i] = changepoint.Sample{
			PushID:        d.PushID,
			PushTimestamp: d.PushTimestamp,
			Value:         d.Value,
		}
	}
	return ret
}
