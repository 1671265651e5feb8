package datum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.treeherder.org/infra/perf/go/changepoint"
)

func TestToSamples(t *testing.T) {
	ts := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	data := []Datum{
		{SignatureID: 1, PushID: 10, JobID: 100, Value: 1.5, PushTimestamp: ts},
		{SignatureID: 1, PushID: 11, JobID: 101, Value: 2.5, PushTimestamp: ts.Add(time.Hour)},
	}
	assert.Equal(t, []changepoint.Sample{
		{PushID: 10, PushTimestamp: ts, Value: 1.5},
		{PushID: 11, PushTimestamp: ts.Add(time.Hour), Value: 2.5},
	}, ToSamples(data))
	assert.Empty(t, ToSamples(nil))
}
