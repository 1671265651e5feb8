// Package mocks contains a testify mock of alerts.Store.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.treeherder.org/infra/perf/go/alerts"
	"go.treeherder.org/infra/perf/go/types"
)

// Store is a mock of alerts.Store.
type Store struct {
	mock.Mock
}

// NewStore returns a new Store that asserts its expectations when the test
// ends.
func NewStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *Store {
	m := &Store{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Store) UpsertSummaryWithAlerts(ctx context.Context, b alerts.Batch) (alerts.UpsertResult, error) {
	args := m.Called(ctx, b)
	return args.Get(0).(alerts.UpsertResult), args.Error(1)
}

func (m *Store) GetSummary(ctx context.Context, id types.SummaryID) (*alerts.Summary, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*alerts.Summary)
	return s, args.Error(1)
}

func (m *Store) ListSummaries(ctx context.Context, f alerts.Filter) ([]*alerts.Summary, int, error) {
	args := m.Called(ctx, f)
	s, _ := args.Get(0).([]*alerts.Summary)
	return s, args.Int(1), args.Error(2)
}

func (m *Store) GetAlert(ctx context.Context, id types.AlertID) (*alerts.Alert, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*alerts.Alert)
	return a, args.Error(1)
}

func (m *Store) SetAlertStatus(ctx context.Context, id types.AlertID, u alerts.AlertUpdate) (*alerts.Alert, error) {
	args := m.Called(ctx, id, u)
	a, _ := args.Get(0).(*alerts.Alert)
	return a, args.Error(1)
}

func (m *Store) SetSummaryStatus(ctx context.Context, id types.SummaryID, status alerts.SummaryStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *Store) SetBugNumber(ctx context.Context, id types.SummaryID, bug *types.BugNumber, tracker types.IssueTracker) error {
	return m.Called(ctx, id, bug, tracker).Error(0)
}

func (m *Store) LinkBugs(ctx context.Context, id types.SummaryID, bugs []types.BugNumber, tracker types.IssueTracker) error {
	return m.Called(ctx, id, bugs, tracker).Error(0)
}

func (m *Store) SetNotes(ctx context.Context, id types.SummaryID, notes string, tracker types.IssueTracker) error {
	return m.Called(ctx, id, notes, tracker).Error(0)
}

func (m *Store) SetTags(ctx context.Context, id types.SummaryID, names []string) error {
	return m.Called(ctx, id, names).Error(0)
}

func (m *Store) UpdateSummary(ctx context.Context, id types.SummaryID, u alerts.SummaryUpdate) error {
	return m.Called(ctx, id, u).Error(0)
}

func (m *Store) ListTags(ctx context.Context) ([]alerts.Tag, error) {
	args := m.Called(ctx)
	t, _ := args.Get(0).([]alerts.Tag)
	return t, args.Error(1)
}

func (m *Store) CreateTag(ctx context.Context, name string) (alerts.Tag, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(alerts.Tag), args.Error(1)
}

func (m *Store) CreateManualAlert(ctx context.Context, ma alerts.ManualAlert) (*alerts.Alert, error) {
	args := m.Called(ctx, ma)
	a, _ := args.Get(0).(*alerts.Alert)
	return a, args.Error(1)
}

func (m *Store) LatestAlertPushTime(ctx context.Context, signatureID types.SignatureID) (time.Time, bool, error) {
	args := m.Called(ctx, signatureID)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

// Confirm Store implements alerts.Store.
var _ alerts.Store = (*Store)(nil)
