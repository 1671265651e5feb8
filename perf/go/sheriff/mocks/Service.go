// Package mocks contains a testify mock of sheriff.Service.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.treeherder.org/infra/perf/go/alerts"
	"go.treeherder.org/infra/perf/go/sheriff"
	"go.treeherder.org/infra/perf/go/types"
)

// Service is a mock of sheriff.Service.
type Service struct {
	mock.Mock
}

// NewService returns a new Service that asserts its expectations when the
// test ends.
func NewService(t interface {
	mock.TestingT
	Cleanup(func())
}) *Service {
	m := &Service{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Service) ListSummaries(ctx context.Context, f sheriff.Filter) (sheriff.Page, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(sheriff.Page), args.Error(1)
}

func (m *Service) GetSummary(ctx context.Context, id types.SummaryID) (*alerts.Summary, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*alerts.Summary)
	return s, args.Error(1)
}

func (m *Service) UpdateSummary(ctx context.Context, id types.SummaryID, u sheriff.SummaryUpdate) (*alerts.Summary, error) {
	args := m.Called(ctx, id, u)
	s, _ := args.Get(0).(*alerts.Summary)
	return s, args.Error(1)
}

func (m *Service) SetAlertStatus(ctx context.Context, id types.AlertID, u alerts.AlertUpdate) (*alerts.Alert, error) {
	args := m.Called(ctx, id, u)
	a, _ := args.Get(0).(*alerts.Alert)
	return a, args.Error(1)
}

func (m *Service) SetSummaryStatus(ctx context.Context, id types.SummaryID, status alerts.SummaryStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *Service) SetBugNumber(ctx context.Context, id types.SummaryID, bug *types.BugNumber) error {
	return m.Called(ctx, id, bug).Error(0)
}

func (m *Service) SetTags(ctx context.Context, id types.SummaryID, names []string) error {
	return m.Called(ctx, id, names).Error(0)
}

func (m *Service) ListTags(ctx context.Context) ([]alerts.Tag, error) {
	args := m.Called(ctx)
	t, _ := args.Get(0).([]alerts.Tag)
	return t, args.Error(1)
}

func (m *Service) CreateTag(ctx context.Context, name string) (alerts.Tag, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(alerts.Tag), args.Error(1)
}

func (m *Service) SetNotes(ctx context.Context, id types.SummaryID, notes string) error {
	return m.Called(ctx, id, notes).Error(0)
}

func (m *Service) CreateManualAlert(ctx context.Context, ma alerts.ManualAlert) (*alerts.Alert, error) {
	args := m.Called(ctx, ma)
	a, _ := args.Get(0).(*alerts.Alert)
	return a, args.Error(1)
}

func (m *Service) OptionCollections(ctx context.Context) (map[string][]string, error) {
	args := m.Called(ctx)
	o, _ := args.Get(0).(map[string][]string)
	return o, args.Error(1)
}

var _ sheriff.Service = (*Service)(nil)
