// Package alerts holds the alerts raised for change points, the summaries
// that group them, and the state machines sheriffs move them through.
package alerts

import (
	"context"
	"math"
	"time"

	"go.treeherder.org/infra/perf/go/types"
)

// Alert is a change point in one series.
type Alert struct {
	ID          types.AlertID     `json:"id"`
	SummaryID   types.SummaryID   `json:"summary_id"`
	SignatureID types.SignatureID `json:"series_signature"`

	// RelatedSummaryID is the summary the alert was reassigned, or marked
	// downstream, to.
	RelatedSummaryID *types.SummaryID `json:"related_summary_id"`

	// RevisedSummaryID is the summary of the most recent re-home that was
	// undone.
	RevisedSummaryID *types.SummaryID `json:"revised_summary_id"`

	IsRegression    bool        `json:"is_regression"`
	AmountPct       float64     `json:"amount_pct"`
	AmountAbs       float64     `json:"amount_abs"`
	PrevValue       float64     `json:"prev_value"`
	NewValue        float64     `json:"new_value"`
	TValue          float64     `json:"t_value"`
	ManuallyCreated bool        `json:"manually_created"`
	Status          AlertStatus `json:"status"`
	Classifier      string      `json:"classifier"`
	Title           string      `json:"title"`
	Created         time.Time   `json:"created"`
	LastUpdated     time.Time   `json:"last_updated"`
}

// Summary groups the alerts of a repository and framework that share a
// culprit push range.
type Summary struct {
	ID           types.SummaryID    `json:"id"`
	RepositoryID types.RepositoryID `json:"repository_id"`
	FrameworkID  types.FrameworkID  `json:"framework_id"`
	PrevPushID   types.PushID       `json:"prev_push_id"`
	PushID       types.PushID       `json:"push_id"`
	Status       SummaryStatus      `json:"status"`
	BugNumber    *types.BugNumber   `json:"bug_number"`
	IssueTracker types.IssueTracker `json:"issue_tracker"`
	Notes        string             `json:"notes"`
	Created      time.Time          `json:"created"`
	FirstTriaged *time.Time         `json:"first_triaged"`
	LastUpdated  time.Time          `json:"last_updated"`

	// The fields below are only filled in by Store.GetSummary.

	// Alerts owned by the summary.
	Alerts []*Alert `json:"alerts,omitempty"`

	// RelatedAlerts are alerts of other summaries re-homed to this one.
	RelatedAlerts []*Alert          `json:"related_alerts,omitempty"`
	Tags          []string          `json:"performance_tags,omitempty"`
	Bugs          []types.BugNumber `json:"bugs,omitempty"`
}

// NewAlert is an alert about to be created for a detection.
type NewAlert struct {
	SignatureID  types.SignatureID
	IsRegression bool
	AmountPct    float64
	AmountAbs    float64
	PrevValue    float64
	NewValue     float64
	TValue       float64
}

// Batch is a set of new alerts that share a repository, framework and
// culprit push.
type Batch struct {
	RepositoryID types.RepositoryID
	FrameworkID  types.FrameworkID
	PushID       types.PushID

	// PrevPushID is the earliest previous push of the detections.
	PrevPushID types.PushID

	Alerts []NewAlert
}

// UpsertResult reports what UpsertSummaryWithAlerts did.
type UpsertResult struct {
	SummaryID      types.SummaryID
	SummaryCreated bool
	AlertsCreated  int
}

// AlertUpdate is the target state of an alert.
type AlertUpdate struct {
	Status AlertStatus `json:"status"`

	// RelatedSummaryID is required with AlertReassigned and optional with
	// AlertDownstream.
	RelatedSummaryID *types.SummaryID `json:"related_summary_id,omitempty"`

	// Classifier is the sheriff who triaged the alert. Empty leaves it
	// unchanged.
	Classifier string `json:"classifier,omitempty"`
}

// ManualAlert is an alert created by a sheriff.
type ManualAlert struct {
	SummaryID   types.SummaryID   `json:"summary_id"`
	SignatureID types.SignatureID `json:"signature_id"`
	PrevValue   float64           `json:"prev_value"`
	NewValue    float64           `json:"new_value"`
	Title       string            `json:"title,omitempty"`
}

// Filter selects summaries for Store.ListSummaries. Zero values don't
// filter.
type Filter struct {
	RepositoryID types.RepositoryID
	FrameworkID  types.FrameworkID
	Status       SummaryStatus

	// Since and Until bound the creation time, inclusive.
	Since time.Time
	Until time.Time

	Offset int
	Limit  int
}

// Tag is a performance tag that can be attached to summaries.
type Tag struct {
	ID   types.TagID `json:"id"`
	Name string      `json:"name"`
}

// Amounts returns the absolute and relative change from prev to next. The
// relative change is a fraction of |prev|, or 0 if prev is 0.
func Amounts(prev, next float64) (abs, pct float64) {
	abs = next - prev
	if prev == 0 {
		return abs, 0
	}
	return abs, abs / math.Abs(prev)
}

// IsRegression returns true if moving from prev to next is worse for a
// framework with the given polarity.
func IsRegression(prev, next float64, lowerIsBetter bool) bool {
	if lowerIsBetter {
		return next > prev
	}
	return next < prev
}

// Store persists alerts and summaries.
//
// All mutations take the target state, so repeating a call is harmless.
type Store interface {
	// UpsertSummaryWithAlerts finds or creates the summary of the batch's
	// repository, framework and push, moves its previous push earlier if
	// the batch reaches further back, and adds the alerts that don't exist
	// yet.
	UpsertSummaryWithAlerts(ctx context.Context, b Batch) (UpsertResult, error)

	// GetSummary returns a summary with its alerts, related alerts, tags
	// and bugs.
	GetSummary(ctx context.Context, id types.SummaryID) (*Summary, error)

	// ListSummaries returns the summaries that match the filter, newest
	// first, and the total number that match.
	ListSummaries(ctx context.Context, f Filter) ([]*Summary, int, error)

	// GetAlert returns one alert.
	GetAlert(ctx context.Context, id types.AlertID) (*Alert, error)

	// SetAlertStatus moves an alert to the target state. The first move out
	// of UNTRIAGED stamps the owning summary's first_triaged and moves an
	// UNTRIAGED summary to INVESTIGATING.
	SetAlertStatus(ctx context.Context, id types.AlertID, u AlertUpdate) (*Alert, error)

	// SetSummaryStatus moves a summary to the target state.
	SetSummaryStatus(ctx context.Context, id types.SummaryID, status SummaryStatus) error

	// SetBugNumber sets, or with nil clears, the bug of a summary.
	SetBugNumber(ctx context.Context, id types.SummaryID, bug *types.BugNumber, tracker types.IssueTracker) error

	// LinkBugs records bugs mentioned for a summary, and makes the first
	// one the summary's bug if it has none.
	LinkBugs(ctx context.Context, id types.SummaryID, bugs []types.BugNumber, tracker types.IssueTracker) error

	// SetNotes replaces the notes of a summary and links the bugs they
	// mention.
	SetNotes(ctx context.Context, id types.SummaryID, notes string, tracker types.IssueTracker) error

	// SetTags replaces the tags of a summary. Unknown tags are created.
	SetTags(ctx context.Context, id types.SummaryID, names []string) error

	// UpdateSummary applies every field of u in one transaction. If any of
	// them is rejected the summary is left as it was.
	UpdateSummary(ctx context.Context, id types.SummaryID, u SummaryUpdate) error

	// ListTags returns all tags ordered by name.
	ListTags(ctx context.Context) ([]Tag, error)

	// CreateTag creates a tag, or returns the existing one.
	CreateTag(ctx context.Context, name string) (Tag, error)

	// CreateManualAlert adds an alert created by a sheriff to a summary.
	CreateManualAlert(ctx context.Context, m ManualAlert) (*Alert, error)

	// LatestAlertPushTime returns the time of the culprit push of the most
	// recent alert of the signature. ok is false if there is none.
	LatestAlertPushTime(ctx context.Context, signatureID types.SignatureID) (ts time.Time, ok bool, err error)
}
