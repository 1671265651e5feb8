// Package types holds the identifiers and small value types shared by the
// stores of the alert engine.
package types

import (
	"strconv"
	"time"
)

// Row identifiers. Each table has its own type so that an alert id can't be
// passed where a summary id is expected.
type (
	RepositoryID int64
	FrameworkID  int64
	PushID       int64
	SignatureID  int64
	SummaryID    int64
	AlertID      int64
	TagID        int64
)

// BadPushID is returned alongside errors.
const BadPushID PushID = -1

// JobID identifies the CI job that produced a datum. Jobs are owned by the
// job ingestion path, so this is not a row id of ours.
type JobID int64

// BugNumber is a bug in the issue tracker. Valid bug numbers are positive.
type BugNumber int64

// IsValid returns true for a positive bug number.
func (b BugNumber) IsValid() bool {
	return b > 0
}

func (b BugNumber) String() string {
	return strconv.FormatInt(int64(b), 10)
}

// IssueTracker identifies which issue tracker a BugNumber lives in.
type IssueTracker int

const (
	// Bugzilla is the default issue tracker.
	Bugzilla IssueTracker = 1
	// GitHub issues.
	GitHub IssueTracker = 2
)

// Repository is a named CI branch.
type Repository struct {
	ID   RepositoryID `json:"id"`
	Name string       `json:"name"`

	// PerformanceAlertsEnabled gates the alert engine for this repository.
	PerformanceAlertsEnabled bool `json:"performance_alerts_enabled"`
}

// Framework is a family of performance tests, e.g. "talos".
type Framework struct {
	ID      FrameworkID `json:"id"`
	Name    string      `json:"name"`
	Enabled bool        `json:"enabled"`

	// LowerIsBetter is the polarity of every series of the framework. When
	// true an increase of the measured value is a regression.
	LowerIsBetter bool `json:"lower_is_better"`
}

// Push is a set of commits landed together on a repository.
type Push struct {
	ID           PushID       `json:"id"`
	RepositoryID RepositoryID `json:"repository_id"`
	Revision     string       `json:"revision"`
	Time         time.Time    `json:"time"`
}
