// Package sheriff is the service behind the REST API that sheriffs use to
// triage alerts.
package sheriff

import (
	"context"
	"time"

	"go.opencensus.io/trace"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/perf/go/alerts"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/issuetracker"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/repository"
	"go.treeherder.org/infra/perf/go/signature"
	"go.treeherder.org/infra/perf/go/types"
)

// Filter selects a page of summaries.
type Filter struct {
	// Repository name, empty for all.
	Repository string

	// Framework id, 0 for all.
	Framework types.FrameworkID

	Status alerts.SummaryStatus
	Since  time.Time
	Until  time.Time

	// Page is 1 based. PageSize 0 uses the configured page size.
	Page     int
	PageSize int
}

// Page is one page of summaries.
type Page struct {
	// Count is the number of summaries that match the filter.
	Count    int               `json:"count"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Results  []*alerts.Summary `json:"results"`
}

// SummaryUpdate is the target state of the editable fields of a summary.
// Nil fields are left unchanged.
type SummaryUpdate struct {
	Status         *alerts.SummaryStatus `json:"status,omitempty"`
	BugNumber      *types.BugNumber      `json:"bug_number,omitempty"`
	ClearBugNumber bool                  `json:"clear_bug_number,omitempty"`
	Notes          *string               `json:"notes,omitempty"`
	Tags           *[]string             `json:"performance_tags,omitempty"`
}

// Service is the set of operations available to sheriffs.
type Service interface {
	ListSummaries(ctx context.Context, f Filter) (Page, error)
	GetSummary(ctx context.Context, id types.SummaryID) (*alerts.Summary, error)

	// UpdateSummary applies every non-nil field of u and returns the
	// updated summary.
	UpdateSummary(ctx context.Context, id types.SummaryID, u SummaryUpdate) (*alerts.Summary, error)

	SetAlertStatus(ctx context.Context, id types.AlertID, u alerts.AlertUpdate) (*alerts.Alert, error)
	SetSummaryStatus(ctx context.Context, id types.SummaryID, status alerts.SummaryStatus) error

	// SetBugNumber sets the bug of a summary, nil clears it.
	SetBugNumber(ctx context.Context, id types.SummaryID, bug *types.BugNumber) error
	SetTags(ctx context.Context, id types.SummaryID, names []string) error
	ListTags(ctx context.Context) ([]alerts.Tag, error)
	CreateTag(ctx context.Context, name string) (alerts.Tag, error)

	// SetNotes stores the notes of a summary and links the bugs they
	// mention.
	SetNotes(ctx context.Context, id types.SummaryID, notes string) error
	CreateManualAlert(ctx context.Context, m alerts.ManualAlert) (*alerts.Alert, error)
	OptionCollections(ctx context.Context) (map[string][]string, error)
}

// Sheriff implements Service.
type Sheriff struct {
	alertStore   alerts.Store
	repositories repository.Store
	signatures   signature.Store

	// tracker may be nil, in which case bug numbers are not verified.
	tracker  issuetracker.IssueTracker
	pageSize int
}

// New returns a new Sheriff.
func New(alertStore alerts.Store, repositories repository.Store, signatures signature.Store, tracker issuetracker.IssueTracker, pageSize int) *Sheriff {
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	return &Sheriff{
		alertStore:   alertStore,
		repositories: repositories,
		signatures:   signatures,
		tracker:      tracker,
		pageSize:     pageSize,
	}
}

// ListSummaries implements Service.
func (s *Sheriff) ListSummaries(ctx context.Context, f Filter) (Page, error) {
	ctx, span := trace.StartSpan(ctx, "sheriff.ListSummaries")
	defer span.End()

	if f.Page < 0 || f.PageSize < 0 {
		return Page{}, skerr.Wrapf(perferrors.ErrValidation, "page %d and page size %d must not be negative", f.Page, f.PageSize)
	}
	if f.Page == 0 {
		f.Page = 1
	}
	if f.PageSize == 0 {
		f.PageSize = s.pageSize
	}
	af := alerts.Filter{
		FrameworkID: f.Framework,
		Status:      f.Status,
		Since:       f.Since,
		Until:       f.Until,
		Offset:      (f.Page - 1) * f.PageSize,
		Limit:       f.PageSize,
	}
	if f.Repository != "" {
		repo, err := s.repositories.GetByName(ctx, f.Repository)
		if err != nil {
			return Page{}, skerr.Wrap(err)
		}
		af.RepositoryID = repo.ID
	}
	summaries, count, err := s.alertStore.ListSummaries(ctx, af)
	if err != nil {
		return Page{}, skerr.Wrap(err)
	}
	return Page{
		Count:    count,
		Page:     f.Page,
		PageSize: f.PageSize,
		Results:  summaries,
	}, nil
}

// GetSummary implements Service.
func (s *Sheriff) GetSummary(ctx context.Context, id types.SummaryID) (*alerts.Summary, error) {
	return s.alertStore.GetSummary(ctx, id)
}

// UpdateSummary implements Service.
func (s *Sheriff) UpdateSummary(ctx context.Context, id types.SummaryID, u SummaryUpdate) (*alerts.Summary, error) {
	ctx, span := trace.StartSpan(ctx, "sheriff.UpdateSummary")
	defer span.End()

	update := alerts.SummaryUpdate{
		Status:         u.Status,
		BugNumber:      u.BugNumber,
		ClearBugNumber: u.ClearBugNumber,
		Notes:          u.Notes,
		Tags:           u.Tags,
		Tracker:        types.Bugzilla,
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}
	if u.Status != nil {
		current, err := s.alertStore.GetSummary(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := alerts.ValidateSummaryTransition(current.Status, *u.Status); err != nil {
			return nil, err
		}
	}
	if u.BugNumber != nil {
		if err := s.verifyBug(ctx, *u.BugNumber); err != nil {
			return nil, err
		}
	}
	if err := s.alertStore.UpdateSummary(ctx, id, update); err != nil {
		return nil, err
	}
	return s.alertStore.GetSummary(ctx, id)
}

// SetAlertStatus implements Service.
func (s *Sheriff) SetAlertStatus(ctx context.Context, id types.AlertID, u alerts.AlertUpdate) (*alerts.Alert, error) {
	a, err := s.alertStore.SetAlertStatus(ctx, id, u)
	if err != nil {
		return nil, err
	}
	sklog.Infof("Alert %d is now %s", id, a.Status)
	return a, nil
}

// SetSummaryStatus implements Service.
func (s *Sheriff) SetSummaryStatus(ctx context.Context, id types.SummaryID, status alerts.SummaryStatus) error {
	return s.alertStore.SetSummaryStatus(ctx, id, status)
}

// SetBugNumber implements Service.
func (s *Sheriff) SetBugNumber(ctx context.Context, id types.SummaryID, bug *types.BugNumber) error {
	if bug != nil {
		if !bug.IsValid() {
			return skerr.Wrapf(perferrors.ErrValidation, "bug number must be positive, got %d", *bug)
		}
		if err := s.verifyBug(ctx, *bug); err != nil {
			return err
		}
	}
	return s.alertStore.SetBugNumber(ctx, id, bug, types.Bugzilla)
}

// verifyBug returns a validation error if the tracker doesn't know the bug.
func (s *Sheriff) verifyBug(ctx context.Context, bug types.BugNumber) error {
	if s.tracker == nil {
		return nil
	}
	exists, err := s.tracker.BugExists(ctx, bug)
	if err != nil {
		return skerr.Wrap(err)
	}
	if !exists {
		return skerr.Wrapf(perferrors.ErrValidation, "bug %d does not exist", bug)
	}
	return nil
}

// SetTags implements Service.
func (s *Sheriff) SetTags(ctx context.Context, id types.SummaryID, names []string) error {
	return s.alertStore.SetTags(ctx, id, names)
}

// ListTags implements Service.
func (s *Sheriff) ListTags(ctx context.Context) ([]alerts.Tag, error) {
	return s.alertStore.ListTags(ctx)
}

// CreateTag implements Service.
func (s *Sheriff) CreateTag(ctx context.Context, name string) (alerts.Tag, error) {
	return s.alertStore.CreateTag(ctx, name)
}

// SetNotes implements Service.
func (s *Sheriff) SetNotes(ctx context.Context, id types.SummaryID, notes string) error {
	return s.alertStore.SetNotes(ctx, id, notes, types.Bugzilla)
}

// CreateManualAlert implements Service.
func (s *Sheriff) CreateManualAlert(ctx context.Context, m alerts.ManualAlert) (*alerts.Alert, error) {
	a, err := s.alertStore.CreateManualAlert(ctx, m)
	if err != nil {
		return nil, err
	}
	sklog.Infof("Created manual alert %d in summary %d", a.ID, a.SummaryID)
	return a, nil
}

// OptionCollections implements Service.
func (s *Sheriff) OptionCollections(ctx context.Context) (map[string][]string, error) {
	return s.signatures.OptionCollections(ctx)
}

// Confirm Sheriff implements Service.
var _ Service = (*Sheriff)(nil)
