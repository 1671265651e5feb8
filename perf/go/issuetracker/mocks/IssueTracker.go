// Package mocks contains a testify mock of issuetracker.IssueTracker.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.treeherder.org/infra/perf/go/issuetracker"
	"go.treeherder.org/infra/perf/go/types"
)

// IssueTracker is a mock of issuetracker.IssueTracker.
type IssueTracker struct {
	mock.Mock
}

// NewIssueTracker returns a new IssueTracker that asserts its expectations
// when the test ends.
func NewIssueTracker(t interface {
	mock.TestingT
	Cleanup(func())
}) *IssueTracker {
	m := &IssueTracker{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *IssueTracker) BugExists(ctx context.Context, bug types.BugNumber) (bool, error) {
	args := m.Called(ctx, bug)
	return args.Bool(0), args.Error(1)
}

var _ issuetracker.IssueTracker = (*IssueTracker)(nil)
