// Package ingestevents defines the task messages carried on the PubSub
// topics: perf.ingest for one datum and perf.detect for one push.
package ingestevents

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/signature"
	"go.treeherder.org/infra/perf/go/types"
)

// Message attributes of perf.detect messages.
const (
	// AttemptAttribute is the 1 based attempt number of a task.
	AttemptAttribute = "attempt"

	// NotBeforeAttribute is the RFC3339 time before which a task must not
	// run.
	NotBeforeAttribute = "not_before"
)

// SignatureFeatures are the fields of a signature that come from the job.
type SignatureFeatures struct {
	Test                string   `json:"test"`
	Suite               string   `json:"suite"`
	Platform            string   `json:"platform"`
	Options             []string `json:"options"`
	ExtraOptions        []string `json:"extra_options,omitempty"`
	ParentSignatureHash string   `json:"parent_signature_hash,omitempty"`
}

// IngestMessage is the body of a perf.ingest message, one measurement.
type IngestMessage struct {
	Repository string `json:"repository"`
	Framework  string `json:"framework"`

	// PushID of an existing push. If zero, Revision is used to find or
	// create the push.
	PushID   types.PushID `json:"push_id,omitempty"`
	Revision string       `json:"revision,omitempty"`

	JobID             types.JobID       `json:"job_id"`
	SignatureFeatures SignatureFeatures `json:"signature_features"`
	Value             float64           `json:"value"`

	// Timestamp of the push.
	Timestamp time.Time `json:"timestamp"`
}

// FeatureTuple returns the signature features with the repository and
// framework of the message.
func (m IngestMessage) FeatureTuple() signature.FeatureTuple {
	f := m.SignatureFeatures
	return signature.FeatureTuple{
		Repository:          m.Repository,
		Framework:           m.Framework,
		Test:                f.Test,
		Suite:               f.Suite,
		Platform:            f.Platform,
		Options:             f.Options,
		ExtraOptions:        f.ExtraOptions,
		ParentSignatureHash: f.ParentSignatureHash,
	}
}

// Validate returns a ValidationError if the message can never be ingested.
func (m IngestMessage) Validate() error {
	if m.Repository == "" || m.Framework == "" {
		return skerr.Wrapf(perferrors.ErrValidation, "repository and framework are required")
	}
	if m.PushID == 0 && m.Revision == "" {
		return skerr.Wrapf(perferrors.ErrValidation, "one of push_id or revision is required")
	}
	if m.PushID < 0 {
		return skerr.Wrapf(perferrors.ErrValidation, "invalid push_id %d", m.PushID)
	}
	if m.Timestamp.IsZero() {
		return skerr.Wrapf(perferrors.ErrValidation, "timestamp is required")
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return skerr.Wrapf(perferrors.ErrValidation, "value must be finite")
	}
	return m.FeatureTuple().Validate()
}

// DetectMessage is the body of a perf.detect message.
type DetectMessage struct {
	Repository string       `json:"repository"`
	Framework  string       `json:"framework"`
	PushID     types.PushID `json:"push_id"`
}

// Validate returns a ValidationError if the message can never be run.
func (m DetectMessage) Validate() error {
	if m.Repository == "" || m.Framework == "" {
		return skerr.Wrapf(perferrors.ErrValidation, "repository and framework are required")
	}
	if m.PushID <= 0 {
		return skerr.Wrapf(perferrors.ErrValidation, "invalid push_id %d", m.PushID)
	}
	return nil
}

// CreateIngestBody encodes a perf.ingest message.
func CreateIngestBody(m *IngestMessage) ([]byte, error) {
	b, err := json.Marshal(m)
	return b, skerr.Wrap(err)
}

// DecodeIngestBody decodes and validates a perf.ingest message. A body that
// can't be decoded is a ValidationError.
func DecodeIngestBody(b []byte) (*IngestMessage, error) {
	var ret IngestMessage
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, skerr.Wrapf(perferrors.ErrValidation, "Failed to decode JSON IngestMessage: %s", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return &ret, nil
}

// CreateDetectBody encodes a perf.detect message.
func CreateDetectBody(m *DetectMessage) ([]byte, error) {
	b, err := json.Marshal(m)
	return b, skerr.Wrap(err)
}

// DecodeDetectBody decodes and validates a perf.detect message.
func DecodeDetectBody(b []byte) (*DetectMessage, error) {
	var ret DetectMessage
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, skerr.Wrapf(perferrors.ErrValidation, "Failed to decode JSON DetectMessage: %s", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return &ret, nil
}

// Attributes returns the attributes of a perf.detect message. A zero
// notBefore is left out.
func Attributes(attempt int, notBefore time.Time) map[string]string {
	ret := map[string]string{
		AttemptAttribute: strconv.Itoa(attempt),
	}
	if !notBefore.IsZero() {
		ret[NotBeforeAttribute] = notBefore.UTC().Format(time.RFC3339)
	}
	return ret
}

// Attempt returns the attempt number from the message attributes, 1 if it
// is missing or unreadable.
func Attempt(attrs map[string]string) int {
	n, err := strconv.Atoi(attrs[AttemptAttribute])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// NotBefore returns the not_before attribute, the zero time if it is missing
// or unreadable.
func NotBefore(attrs map[string]string) time.Time {
	t, err := time.Parse(time.RFC3339, attrs[NotBeforeAttribute])
	if err != nil {
		return time.Time{}
	}
	return t
}
