// Package regression runs change point detection for a push and turns the
// detections into alert summaries.
package regression

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opencensus.io/trace"
	"go.treeherder.org/infra/go/metrics2"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/perf/go/alerts"
	"go.treeherder.org/infra/perf/go/changepoint"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/datum"
	"go.treeherder.org/infra/perf/go/framework"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/repository"
	"go.treeherder.org/infra/perf/go/signature"
	"go.treeherder.org/infra/perf/go/types"
)

// SignatureDetection is a change point found in the series of one
// signature.
type SignatureDetection struct {
	SignatureID types.SignatureID
	changepoint.Detection
}

// Engine finds regressions in the series touched by a push.
//
// An Engine holds no mutable state and may be shared between goroutines.
type Engine struct {
	repositories repository.Store
	frameworks   framework.Store
	signatures   signature.Store
	data         datum.Store
	alertStore   alerts.Store
	cfg          config.DetectionConfig

	// detect is changepoint.Detect, replaced in tests.
	detect func(series []changepoint.Point, th changepoint.Thresholds, lowerIsBetter bool) []changepoint.Detection

	skipped          metrics2.Counter
	detections       metrics2.Counter
	deadlineExceeded metrics2.Counter
	summaries        metrics2.Counter
}

// New returns a new Engine.
func New(repositories repository.Store, frameworks framework.Store, signatures signature.Store, data datum.Store, alertStore alerts.Store, cfg config.DetectionConfig) *Engine {
	return &Engine{
		repositories:     repositories,
		frameworks:       frameworks,
		signatures:       signatures,
		data:             data,
		alertStore:       alertStore,
		cfg:              cfg,
		detect:           changepoint.Detect,
		skipped:          metrics2.GetCounter("perf_detect_skipped"),
		detections:       metrics2.GetCounter("perf_detections"),
		deadlineExceeded: metrics2.GetCounter("perf_detect_deadline_exceeded"),
		summaries:        metrics2.GetCounter("perf_detect_summaries"),
	}
}

// DetectPush runs detection over every signature of the framework that has
// data at the push, and records the resulting alerts. Nothing is done if
// alerting is disabled for the repository or the framework.
//
// Errors for single signatures don't stop the others, they are returned
// together once every signature has been tried.
func (e *Engine) DetectPush(ctx context.Context, repositoryName, frameworkName string, pushID types.PushID) ([]alerts.UpsertResult, error) {
	ctx, span := trace.StartSpan(ctx, "regression.DetectPush")
	defer span.End()

	repo, err := e.repositories.GetByName(ctx, repositoryName)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	fw, err := e.frameworks.GetByName(ctx, frameworkName)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if !repo.PerformanceAlertsEnabled || !fw.Enabled {
		sklog.Infof("Skipping detection for push %d: alerts enabled for repository %q: %t, framework %q enabled: %t", pushID, repo.Name, repo.PerformanceAlertsEnabled, fw.Name, fw.Enabled)
		e.skipped.Inc(1)
		return nil, nil
	}

	signatureIDs, err := e.data.SignaturesForPush(ctx, pushID)
	if err != nil {
		return nil, skerr.Wrapf(err, "finding signatures of push %d", pushID)
	}

	th := e.cfg.ThresholdsFor(fw.Name)
	var errs *multierror.Error
	found := []SignatureDetection{}
	for _, id := range signatureIDs {
		sig, err := e.signatures.Get(ctx, id)
		if err != nil {
			errs = multierror.Append(errs, skerr.Wrapf(err, "signature %d", id))
			continue
		}
		if sig.RepositoryID != repo.ID || sig.FrameworkID != fw.ID {
			continue
		}
		d, err := e.detectSignature(ctx, id, th, fw.LowerIsBetter)
		if err != nil {
			errs = multierror.Append(errs, skerr.Wrapf(err, "signature %d", id))
			continue
		}
		found = append(found, d...)
	}
	e.detections.Inc(int64(len(found)))

	results, err := e.ProcessDetections(ctx, repo.ID, fw.ID, found)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	return results, errs.ErrorOrNil()
}

// detectSignature returns the detections of one series that are newer than
// the latest alert that already exists for it.
func (e *Engine) detectSignature(ctx context.Context, id types.SignatureID, th changepoint.Thresholds, lowerIsBetter bool) ([]SignatureDetection, error) {
	defer metrics2.NewTimer("perf_detect_signature").Stop()

	series, err := e.data.Series(ctx, id, e.cfg.SeriesLength)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	points := changepoint.Collapse(datum.ToSamples(series))

	detections, err := e.detectWithDeadline(ctx, points, th, lowerIsBetter)
	if err != nil {
		return nil, err
	}
	if len(detections) == 0 {
		return nil, nil
	}

	latest, ok, err := e.alertStore.LatestAlertPushTime(ctx, id)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	ret := []SignatureDetection{}
	for _, d := range detections {
		if ok && !d.PushTimestamp.After(latest) {
			continue
		}
		ret = append(ret, SignatureDetection{SignatureID: id, Detection: d})
	}
	return ret, nil
}

// detectWithDeadline runs the detector in its own goroutine and gives up on
// it once the configured deadline passes.
func (e *Engine) detectWithDeadline(ctx context.Context, points []changepoint.Point, th changepoint.Thresholds, lowerIsBetter bool) ([]changepoint.Detection, error) {
	deadline := time.Duration(e.cfg.Deadline)
	if deadline <= 0 {
		deadline = config.DefaultDetectDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Buffered so the goroutine can always finish.
	ch := make(chan []changepoint.Detection, 1)
	go func() {
		ch <- e.detect(points, th, lowerIsBetter)
	}()
	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		e.deadlineExceeded.Inc(1)
		return nil, skerr.Wrapf(perferrors.ErrDeadlineExceeded, "detection over %d points: %s", len(points), ctx.Err())
	}
}

// ProcessDetections groups detections by culprit push and upserts one
// summary per group.
func (e *Engine) ProcessDetections(ctx context.Context, repositoryID types.RepositoryID, frameworkID types.FrameworkID, detections []SignatureDetection) ([]alerts.UpsertResult, error) {
	ret := []alerts.UpsertResult{}
	for _, group := range GroupByPush(detections) {
		b, err := NewBatch(repositoryID, frameworkID, group)
		if err != nil {
			return ret, err
		}
		res, err := e.alertStore.UpsertSummaryWithAlerts(ctx, b)
		if err != nil {
			return ret, skerr.Wrap(err)
		}
		if res.SummaryCreated {
			e.summaries.Inc(1)
			sklog.Infof("Created summary %d for push %d with %d alerts", res.SummaryID, b.PushID, res.AlertsCreated)
		}
		ret = append(ret, res)
	}
	return ret, nil
}

// GroupByPush splits detections into groups that share a culprit push.
// Groups are ordered by push time, then push id, and detections within a
// group keep their order.
func GroupByPush(detections []SignatureDetection) [][]SignatureDetection {
	byPush := map[types.PushID][]SignatureDetection{}
	order := []types.PushID{}
	times := map[types.PushID]time.Time{}
	for _, d := range detections {
		if _, ok := byPush[d.PushID]; !ok {
			order = append(order, d.PushID)
			times[d.PushID] = d.PushTimestamp
		}
		byPush[d.PushID] = append(byPush[d.PushID], d)
	}
	sort.SliceStable(order, func(i, j int) bool {
		ti, tj := times[order[i]], times[order[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return order[i] < order[j]
	})
	ret := make([][]SignatureDetection, 0, len(order))
	for _, id := range order {
		ret = append(ret, byPush[id])
	}
	return ret
}

// NewBatch builds the batch of alerts for detections that share a culprit
// push. The previous push of the batch is the earliest previous push of the
// detections, with ties going to the lower push id.
func NewBatch(repositoryID types.RepositoryID, frameworkID types.FrameworkID, detections []SignatureDetection) (alerts.Batch, error) {
	if len(detections) == 0 {
		return alerts.Batch{}, skerr.Wrapf(perferrors.ErrValidation, "no detections")
	}
	first := detections[0]
	b := alerts.Batch{
		RepositoryID: repositoryID,
		FrameworkID:  frameworkID,
		PushID:       first.PushID,
		PrevPushID:   first.PrevPushID,
	}
	prevTime := first.PrevPushTimestamp
	for _, d := range detections {
		if d.PushID != b.PushID {
			return alerts.Batch{}, skerr.Wrapf(perferrors.ErrValidation, "detections for pushes %d and %d can't share a summary", b.PushID, d.PushID)
		}
		if d.PrevPushTimestamp.Before(prevTime) || (d.PrevPushTimestamp.Equal(prevTime) && d.PrevPushID < b.PrevPushID) {
			b.PrevPushID, prevTime = d.PrevPushID, d.PrevPushTimestamp
		}
		b.Alerts = append(b.Alerts, alerts.NewAlert{
			SignatureID:  d.SignatureID,
			IsRegression: d.IsRegression,
			AmountPct:    d.AmountPct,
			AmountAbs:    d.AmountAbs,
			PrevValue:    d.PrevValue,
			NewValue:     d.NewValue,
			TValue:       d.TValue,
		})
	}
	return b, nil
}
