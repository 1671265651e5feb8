package alerts

import (
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/types"
)

// AlertStatus is the triage state of an alert.
type AlertStatus string

// AlertStatus values.
const (
	AlertUntriaged AlertStatus = "UNTRIAGED"

	// AlertDownstream is a regression caused by a merge from another
	// repository. The alert is informational.
	AlertDownstream AlertStatus = "DOWNSTREAM"

	// AlertReassigned alerts were moved to the summary in RelatedSummaryID.
	AlertReassigned AlertStatus = "REASSIGNED"

	AlertInvalid      AlertStatus = "INVALID"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertConfirming   AlertStatus = "CONFIRMING"
)

// AllAlertStatus lists every AlertStatus.
var AllAlertStatus = []AlertStatus{
	AlertUntriaged,
	AlertDownstream,
	AlertReassigned,
	AlertInvalid,
	AlertAcknowledged,
	AlertConfirming,
}

var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertUntriaged:  {AlertDownstream, AlertReassigned, AlertInvalid, AlertAcknowledged, AlertConfirming},
	AlertConfirming: {AlertAcknowledged, AlertInvalid, AlertReassigned},
	// Undoing a re-home.
	AlertReassigned: {AlertUntriaged},
}

// IsValid returns true if s is a known status.
func (s AlertStatus) IsValid() bool {
	for _, v := range AllAlertStatus {
		if v == s {
			return true
		}
	}
	return false
}

// ValidateAlertTransition returns nil if an alert may move from one status
// to another. Moving to the current status is always allowed and changes
// nothing.
func ValidateAlertTransition(from, to AlertStatus) error {
	if !to.IsValid() {
		return skerr.Wrapf(perferrors.ErrValidation, "unknown alert status %q", to)
	}
	if from == to {
		return nil
	}
	for _, allowed := range alertTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return skerr.Wrapf(perferrors.ErrStateTransitionRejected, "alert status %s -> %s", from, to)
}

// SummaryStatus is the triage state of an alert summary.
type SummaryStatus string

// SummaryStatus values.
const (
	SummaryUntriaged     SummaryStatus = "UNTRIAGED"
	SummaryInvestigating SummaryStatus = "INVESTIGATING"
	SummaryImprovement   SummaryStatus = "IMPROVEMENT"
	SummaryWontfix       SummaryStatus = "WONTFIX"
	SummaryFixed         SummaryStatus = "FIXED"
	SummaryBackedOut     SummaryStatus = "BACKED_OUT"
)

// AllSummaryStatus lists every SummaryStatus.
var AllSummaryStatus = []SummaryStatus{
	SummaryUntriaged,
	SummaryInvestigating,
	SummaryImprovement,
	SummaryWontfix,
	SummaryFixed,
	SummaryBackedOut,
}

// IsValid returns true if s is a known status.
func (s SummaryStatus) IsValid() bool {
	for _, v := range AllSummaryStatus {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true for the states a summary never leaves.
func (s SummaryStatus) IsTerminal() bool {
	switch s {
	case SummaryImprovement, SummaryWontfix, SummaryFixed, SummaryBackedOut:
		return true
	}
	return false
}

// ValidateSummaryTransition returns nil if a summary may move from one
// status to another. UNTRIAGED may move anywhere, INVESTIGATING only to a
// terminal state, and a terminal state only to itself.
func ValidateSummaryTransition(from, to SummaryStatus) error {
	if !to.IsValid() {
		return skerr.Wrapf(perferrors.ErrValidation, "unknown summary status %q", to)
	}
	if from == to || from == SummaryUntriaged {
		return nil
	}
	if from == SummaryInvestigating && to.IsTerminal() {
		return nil
	}
	return skerr.Wrapf(perferrors.ErrStateTransitionRejected, "summary status %s -> %s", from, to)
}

// SummaryUpdate is the target state of the editable fields of a summary. Nil
// fields are left unchanged.
type SummaryUpdate struct {
	Status         *SummaryStatus
	BugNumber      *types.BugNumber
	ClearBugNumber bool
	Notes          *string
	Tags           *[]string

	// Tracker records where BugNumber and the bugs in Notes live. Zero means
	// Bugzilla.
	Tracker types.IssueTracker
}

// Validate checks the fields that can be checked without the current state
// of the summary.
func (u SummaryUpdate) Validate() error {
	if u.ClearBugNumber && u.BugNumber != nil {
		return skerr.Wrapf(perferrors.ErrValidation, "bug_number and clear_bug_number are exclusive")
	}
	if u.BugNumber != nil && !u.BugNumber.IsValid() {
		return skerr.Wrapf(perferrors.ErrValidation, "bug number must be positive, got %d", *u.BugNumber)
	}
	if u.Status != nil && !u.Status.IsValid() {
		return skerr.Wrapf(perferrors.ErrValidation, "unknown summary status %q", *u.Status)
	}
	return nil
}
