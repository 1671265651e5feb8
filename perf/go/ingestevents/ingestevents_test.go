package ingestevents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/perf/go/perferrors"
)

var ts = time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)

func validIngest() *IngestMessage {
	return &IngestMessage{
		Repository: "autoland",
		Framework:  "talos",
		PushID:     12,
		JobID:      345,
		SignatureFeatures: SignatureFeatures{
			Suite:    "tp5",
			Platform: "linux64",
			Options:  []string{"opt"},
		},
		Value:     123.5,
		Timestamp: ts,
	}
}

func TestIngestBody_RoundTrip(t *testing.T) {
	b, err := CreateIngestBody(validIngest())
	require.NoError(t, err)
	got, err := DecodeIngestBody(b)
	require.NoError(t, err)
	assert.Equal(t, validIngest(), got)
}

func TestDecodeIngestBody_FromProducer(t *testing.T) {
	got, err := DecodeIngestBody([]byte(`{
		"repository": "autoland",
		"framework": "talos",
		"revision": "abcdef",
		"job_id": 1,
		"signature_features": {"test": "a11y", "suite": "a11yr", "platform": "windows10-64", "options": ["pgo"], "parent_signature_hash": "ffff"},
		"value": 10,
		"timestamp": "2026-04-02T10:00:00Z"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "abcdef", got.Revision)
	f := got.FeatureTuple()
	assert.Equal(t, "autoland", f.Repository)
	assert.Equal(t, "a11y", f.Test)
	assert.Equal(t, "ffff", f.ParentSignatureHash)
	assert.Equal(t, ts, got.Timestamp)
}

func TestDecodeIngestBody_Invalid_ReturnsValidationError(t *testing.T) {
	_, err := DecodeIngestBody([]byte("{not json"))
	assert.ErrorIs(t, err, perferrors.ErrValidation)

	for name, mutate := range map[string]func(m *IngestMessage){
		"no repository": func(m *IngestMessage) { m.Repository = "" },
		"no push":       func(m *IngestMessage) { m.PushID = 0 },
		"no timestamp":  func(m *IngestMessage) { m.Timestamp = time.Time{} },
		"no suite":      func(m *IngestMessage) { m.SignatureFeatures.Suite = "" },
	} {
		t.Run(name, func(t *testing.T) {
			m := validIngest()
			mutate(m)
			assert.ErrorIs(t, m.Validate(), perferrors.ErrValidation)
		})
	}
}

func TestDetectBody_RoundTrip(t *testing.T) {
	m := &DetectMessage{Repository: "autoland", Framework: "talos", PushID: 7}
	b, err := CreateDetectBody(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"repository": "autoland", "framework": "talos", "push_id": 7}`, string(b))
	got, err := DecodeDetectBody(b)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = DecodeDetectBody([]byte(`{"repository": "autoland", "framework": "talos"}`))
	assert.ErrorIs(t, err, perferrors.ErrValidation)
}

func TestAttributes(t *testing.T) {
	attrs := Attributes(3, ts)
	assert.Equal(t, map[string]string{"attempt": "3", "not_before": "2026-04-02T10:00:00Z"}, attrs)
	assert.Equal(t, 3, Attempt(attrs))
	assert.Equal(t, ts, NotBefore(attrs))

	assert.Equal(t, map[string]string{"attempt": "1"}, Attributes(1, time.Time{}))
	assert.Equal(t, 1, Attempt(nil))
	assert.True(t, NotBefore(map[string]string{"not_before": "soon"}).IsZero())
}
