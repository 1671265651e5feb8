package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/go/now"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/perf/go/alerts"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/datum"
	"go.treeherder.org/infra/perf/go/ingestevents"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/push"
	"go.treeherder.org/infra/perf/go/signature"
	"go.treeherder.org/infra/perf/go/types"
)

const (
	repoID  types.RepositoryID = 1
	sigID   types.SignatureID  = 7
	pushID  types.PushID       = 42
	otherID types.PushID       = 43
)

var (
	pushTime = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	nowTime  = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
)

var retryConfig = config.RetryConfig{
	Base:        config.DurationAsString(30 * time.Second),
	Factor:      2,
	Cap:         config.DurationAsString(30 * time.Minute),
	MaxAttempts: 5,
}

type fakeSignatures struct {
	signature.Store
	err error
}

func (f *fakeSignatures) Resolve(ctx context.Context, ft signature.FeatureTuple) (*signature.Signature, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &signature.Signature{ID: sigID, RepositoryID: repoID, Suite: ft.Suite}, nil
}

type fakePushes struct {
	push.Store
	puts []string
}

func (f *fakePushes) Get(ctx context.Context, id types.PushID) (*types.Push, error) {
	switch id {
	case pushID:
		return &types.Push{ID: pushID, RepositoryID: repoID, Revision: "abc", Time: pushTime}, nil
	case otherID:
		return &types.Push{ID: otherID, RepositoryID: repoID + 1, Revision: "def", Time: pushTime}, nil
	}
	return nil, skerr.Wrapf(perferrors.ErrNotFound, "push %d", id)
}

func (f *fakePushes) Put(ctx context.Context, r types.RepositoryID, revision string, ts time.Time) (types.PushID, error) {
	f.puts = append(f.puts, revision)
	return pushID, nil
}

type fakeData struct {
	datum.Store
	ingested []datum.Datum
	err      error
}

func (f *fakeData) Ingest(ctx context.Context, d datum.Datum) error {
	if f.err != nil {
		return f.err
	}
	f.ingested = append(f.ingested, d)
	return nil
}

type published struct {
	data  []byte
	attrs map[string]string
}

type fakePublisher struct {
	messages []published
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{data: data, attrs: attrs})
	return nil
}

type fakeDetector struct {
	calls int
	err   error
}

func (f *fakeDetector) DetectPush(ctx context.Context, repositoryName, frameworkName string, id types.PushID) ([]alerts.UpsertResult, error) {
	f.calls++
	return nil, f.err
}

type fixture struct {
	w          *Worker
	signatures *fakeSignatures
	pushes     *fakePushes
	data       *fakeData
	detector   *fakeDetector
	detect     *fakePublisher
	deadLetter *fakePublisher
}

func setup(publishAfterIngest bool) *fixture {
	f := &fixture{
		signatures: &fakeSignatures{},
		pushes:     &fakePushes{},
		data:       &fakeData{},
		detector:   &fakeDetector{},
		detect:     &fakePublisher{},
		deadLetter: &fakePublisher{},
	}
	f.w = newWorker(f.pushes, f.signatures, f.data, f.detector, f.detect, publishAfterIngest, f.deadLetter, retryConfig)
	return f
}

func ingestBody(t *testing.T, mutate func(m *ingestevents.IngestMessage)) []byte {
	m := &ingestevents.IngestMessage{
		Repository: "autoland",
		Framework:  "talos",
		PushID:     pushID,
		JobID:      99,
		SignatureFeatures: ingestevents.SignatureFeatures{
			Suite:    "tp5",
			Platform: "linux64",
			Options:  []string{"opt"},
		},
		Value:     12.5,
		Timestamp: pushTime,
	}
	if mutate != nil {
		mutate(m)
	}
	b, err := ingestevents.CreateIngestBody(m)
	require.NoError(t, err)
	return b
}

func detectBody(t *testing.T) []byte {
	b, err := ingestevents.CreateDetectBody(&ingestevents.DetectMessage{Repository: "autoland", Framework: "talos", PushID: pushID})
	require.NoError(t, err)
	return b
}

func TestHandleIngest_Success_StoresDatumAndPublishesDetect(t *testing.T) {
	f := setup(true)
	ctx := now.WithTime(context.Background(), nowTime)
	assert.Equal(t, Ack, f.w.HandleIngest(ctx, ingestBody(t, nil), nil))

	require.Len(t, f.data.ingested, 1)
	assert.Equal(t, datum.Datum{SignatureID: sigID, PushID: pushID, JobID: 99, Value: 12.5, PushTimestamp: pushTime}, f.data.ingested[0])

	require.Len(t, f.detect.messages, 1)
	msg, err := ingestevents.DecodeDetectBody(f.detect.messages[0].data)
	require.NoError(t, err)
	assert.Equal(t, pushID, msg.PushID)
	assert.Equal(t, "1", f.detect.messages[0].attrs[ingestevents.AttemptAttribute])
	assert.NotEmpty(t, f.detect.messages[0].attrs[TaskIDAttribute])
	assert.Equal(t, nowTime.Add(detectDedupWindow), ingestevents.NotBefore(f.detect.messages[0].attrs))
}

func TestHandleIngest_SamePushTwice_PublishesOneDetect(t *testing.T) {
	f := setup(true)
	ctx := now.WithTime(context.Background(), nowTime)
	assert.Equal(t, Ack, f.w.HandleIngest(ctx, ingestBody(t, nil), nil))
	assert.Equal(t, Ack, f.w.HandleIngest(ctx, ingestBody(t, func(m *ingestevents.IngestMessage) {
		m.JobID = 100
		m.SignatureFeatures.Suite = "tp6"
	}), nil))
	assert.Len(t, f.data.ingested, 2)
	assert.Len(t, f.detect.messages, 1)

	assert.Equal(t, Ack, f.w.HandleIngest(ctx, ingestBody(t, func(m *ingestevents.IngestMessage) {
		m.Framework = "awsy"
	}), nil))
	assert.Len(t, f.detect.messages, 2)
}

func TestHandleIngest_PublishFails_NextIngestPublishes(t *testing.T) {
	f := setup(true)
	ctx := now.WithTime(context.Background(), nowTime)
	f.detect.err = errors.New("broker down")
	assert.Equal(t, Nack, f.w.HandleIngest(ctx, ingestBody(t, nil), nil))

	f.detect.err = nil
	assert.Equal(t, Ack, f.w.HandleIngest(ctx, ingestBody(t, nil), nil))
	assert.Len(t, f.detect.messages, 1)
}

func TestHandleIngest_PublishDisabled_DoesNotPublish(t *testing.T) {
	f := setup(false)
	assert.Equal(t, Ack, f.w.HandleIngest(context.Background(), ingestBody(t, nil), nil))
	assert.Len(t, f.data.ingested, 1)
	assert.Empty(t, f.detect.messages)
}

func TestHandleIngest_Revision_CreatesPush(t *testing.T) {
	f := setup(false)
	body := ingestBody(t, func(m *ingestevents.IngestMessage) {
		m.PushID = 0
		m.Revision = "fedcba"
	})
	assert.Equal(t, Ack, f.w.HandleIngest(context.Background(), body, nil))
	assert.Equal(t, []string{"fedcba"}, f.pushes.puts)
	require.Len(t, f.data.ingested, 1)
	assert.Equal(t, pushID, f.data.ingested[0].PushID)
}

func TestHandleIngest_ValidationErrors_AreDropped(t *testing.T) {
	unknownFramework := setup(false)
	unknownFramework.signatures.err = skerr.Wrapf(perferrors.ErrUnknownFramework, "talos")

	conflicting := setup(false)
	conflicting.data.err = skerr.Wrap(perferrors.ErrConflictingDatum)

	for name, tc := range map[string]struct {
		f    *fixture
		body []byte
	}{
		"bad json":          {f: setup(false), body: []byte("{")},
		"missing suite":     {f: setup(false), body: ingestBody(t, func(m *ingestevents.IngestMessage) { m.SignatureFeatures.Suite = "" })},
		"unknown framework": {f: unknownFramework, body: ingestBody(t, nil)},
		"conflicting datum": {f: conflicting, body: ingestBody(t, nil)},
		"push in other repo": {f: setup(false), body: ingestBody(t, func(m *ingestevents.IngestMessage) {
			m.PushID = otherID
		})},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, Ack, tc.f.w.HandleIngest(context.Background(), tc.body, nil))
			assert.Empty(t, tc.f.data.ingested)
		})
	}
}

func TestHandleIngest_RetryableErrors_AreNacked(t *testing.T) {
	pending := setup(false)
	pending.signatures.err = skerr.Wrapf(perferrors.ErrPendingParent, "parent ffff")
	assert.Equal(t, Nack, pending.w.HandleIngest(context.Background(), ingestBody(t, nil), nil))

	db := setup(false)
	db.data.err = errors.New("connection reset")
	assert.Equal(t, Nack, db.w.HandleIngest(context.Background(), ingestBody(t, nil), nil))

	missingPush := setup(false)
	body := ingestBody(t, func(m *ingestevents.IngestMessage) { m.PushID = 1000 })
	assert.Equal(t, Nack, missingPush.w.HandleIngest(context.Background(), body, nil))

	publishFails := setup(true)
	publishFails.detect.err = errors.New("broker down")
	assert.Equal(t, Nack, publishFails.w.HandleIngest(context.Background(), ingestBody(t, nil), nil))
}

func TestHandleDetect_Success_Acks(t *testing.T) {
	f := setup(false)
	ctx := now.WithTime(context.Background(), nowTime)
	assert.Equal(t, Ack, f.w.HandleDetect(ctx, detectBody(t), nil))
	assert.Equal(t, 1, f.detector.calls)
}

func TestHandleDetect_NotBeforeInFuture_NacksWithoutRunning(t *testing.T) {
	f := setup(false)
	ctx := now.WithTime(context.Background(), nowTime)
	attrs := ingestevents.Attributes(2, nowTime.Add(time.Minute))
	assert.Equal(t, Nack, f.w.HandleDetect(ctx, detectBody(t), attrs))
	assert.Equal(t, 0, f.detector.calls)

	attrs = ingestevents.Attributes(2, nowTime.Add(-time.Minute))
	assert.Equal(t, Ack, f.w.HandleDetect(ctx, detectBody(t), attrs))
	assert.Equal(t, 1, f.detector.calls)
}

func TestHandleDetect_Timeout_RepublishesWithBackoff(t *testing.T) {
	f := setup(false)
	f.detector.err = skerr.Wrap(perferrors.ErrDeadlineExceeded)
	ctx := now.WithTime(context.Background(), nowTime)

	attrs := ingestevents.Attributes(2, time.Time{})
	attrs[TaskIDAttribute] = "task-1"
	assert.Equal(t, Ack, f.w.HandleDetect(ctx, detectBody(t), attrs))

	require.Len(t, f.detect.messages, 1)
	got := f.detect.messages[0]
	assert.Equal(t, detectBody(t), got.data)
	assert.Equal(t, 3, ingestevents.Attempt(got.attrs))
	assert.Equal(t, nowTime.Add(time.Minute), ingestevents.NotBefore(got.attrs))
	assert.Equal(t, "task-1", got.attrs[TaskIDAttribute])
	assert.Empty(t, f.deadLetter.messages)
}

func TestHandleDetect_OutOfAttempts_DeadLetters(t *testing.T) {
	f := setup(false)
	f.detector.err = skerr.Wrap(perferrors.ErrDeadlineExceeded)
	ctx := now.WithTime(context.Background(), nowTime)

	assert.Equal(t, Ack, f.w.HandleDetect(ctx, detectBody(t), ingestevents.Attributes(5, time.Time{})))
	assert.Empty(t, f.detect.messages)
	require.Len(t, f.deadLetter.messages, 1)
	got := f.deadLetter.messages[0]
	assert.Equal(t, 5, ingestevents.Attempt(got.attrs))
	assert.NotEmpty(t, got.attrs[TaskIDAttribute])
	assert.Contains(t, got.attrs[ErrorAttribute], "deadline")
}

func TestHandleDetect_RepublishFails_Nacks(t *testing.T) {
	f := setup(false)
	f.detector.err = errors.New("db gone")
	f.detect.err = errors.New("broker down")
	ctx := now.WithTime(context.Background(), nowTime)
	assert.Equal(t, Nack, f.w.HandleDetect(ctx, detectBody(t), nil))
}

func TestHandleDetect_NotRetryable_Drops(t *testing.T) {
	f := setup(false)
	f.detector.err = skerr.Wrapf(perferrors.ErrUnknownRepository, "nope")
	ctx := now.WithTime(context.Background(), nowTime)
	assert.Equal(t, Ack, f.w.HandleDetect(ctx, detectBody(t), nil))
	assert.Empty(t, f.detect.messages)
	assert.Empty(t, f.deadLetter.messages)

	assert.Equal(t, Ack, f.w.HandleDetect(ctx, []byte(`{"repository": "autoland"}`), nil))
	assert.Equal(t, 1, f.detector.calls)
}

func TestHandleDetect_MixedErrors_RetriesIfAnyRetryable(t *testing.T) {
	f := setup(false)
	f.detector.err = multierror.Append(nil,
		skerr.Wrapf(perferrors.ErrConflictingDatum, "signature 7"),
		skerr.Wrapf(errors.New("connection reset by peer"), "signature 8"),
	).ErrorOrNil()
	ctx := now.WithTime(context.Background(), nowTime)

	assert.Equal(t, Ack, f.w.HandleDetect(ctx, detectBody(t), nil))
	require.Len(t, f.detect.messages, 1)
	assert.Equal(t, 2, ingestevents.Attempt(f.detect.messages[0].attrs))
	assert.Empty(t, f.deadLetter.messages)
}

func TestRetryDelay(t *testing.T) {
	for attempt, want := range map[int]time.Duration{
		1: 30 * time.Second,
		2: time.Minute,
		3: 2 * time.Minute,
		4: 4 * time.Minute,
		5: 8 * time.Minute,
		6: 16 * time.Minute,
		7: 30 * time.Minute,
		9: 30 * time.Minute,
	} {
		assert.InDelta(t, float64(want), float64(RetryDelay(retryConfig, attempt)), float64(time.Millisecond), "attempt %d", attempt)
	}
}

func TestSubscriptionOptions_RedeliveryFollowsRetryBackoff(t *testing.T) {
	opts := subscriptionOptions(4, config.DetectionConfig{
		Deadline: config.DurationAsString(time.Minute),
		Retry:    retryConfig,
	})
	assert.Equal(t, 4, opts.NumGoRoutines)
	assert.Equal(t, 2*time.Minute, opts.AckDeadline)
	assert.Equal(t, 30*time.Second, opts.MinRedeliveryDelay)
	assert.Equal(t, 600*time.Second, opts.MaxRedeliveryDelay)

	long := retryConfig
	long.Base = config.DurationAsString(time.Hour)
	opts = subscriptionOptions(1, config.DetectionConfig{Retry: long})
	assert.Equal(t, 600*time.Second, opts.MinRedeliveryDelay)
	assert.Equal(t, 600*time.Second, opts.MaxRedeliveryDelay)
}
