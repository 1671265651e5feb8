package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/types"
)

func TestValidateAlertTransition_AllowedEdges(t *testing.T) {
	for _, to := range []AlertStatus{AlertDownstream, AlertReassigned, AlertInvalid, AlertAcknowledged, AlertConfirming} {
		assert.NoError(t, ValidateAlertTransition(AlertUntriaged, to), to)
	}
	for _, to := range []AlertStatus{AlertAcknowledged, AlertInvalid, AlertReassigned} {
		assert.NoError(t, ValidateAlertTransition(AlertConfirming, to), to)
	}
	assert.NoError(t, ValidateAlertTransition(AlertReassigned, AlertUntriaged))
}

func TestValidateAlertTransition_SameStatus_NoOp(t *testing.T) {
	for _, s := range AllAlertStatus {
		assert.NoError(t, ValidateAlertTransition(s, s), s)
	}
}

func TestValidateAlertTransition_InvalidToAcknowledged_Rejected(t *testing.T) {
	err := ValidateAlertTransition(AlertInvalid, AlertAcknowledged)
	require.ErrorIs(t, err, perferrors.ErrStateTransitionRejected)
}

func TestValidateAlertTransition_EveryOtherEdge_Rejected(t *testing.T) {
	allowed := map[[2]AlertStatus]bool{}
	for from, tos := range alertTransitions {
		for _, to := range tos {
			allowed[[2]AlertStatus{from, to}] = true
		}
	}
	for _, from := range AllAlertStatus {
		for _, to := range AllAlertStatus {
			if from == to || allowed[[2]AlertStatus{from, to}] {
				continue
			}
			assert.ErrorIs(t, ValidateAlertTransition(from, to), perferrors.ErrStateTransitionRejected, "%s -> %s", from, to)
		}
	}
}

func TestValidateAlertTransition_UnknownTarget_Validation(t *testing.T) {
	require.ErrorIs(t, ValidateAlertTransition(AlertUntriaged, "BOGUS"), perferrors.ErrValidation)
}

func TestValidateSummaryTransition(t *testing.T) {
	for _, to := range AllSummaryStatus {
		assert.NoError(t, ValidateSummaryTransition(SummaryUntriaged, to), to)
		assert.NoError(t, ValidateSummaryTransition(to, to), to)
	}
	for _, to := range []SummaryStatus{SummaryImprovement, SummaryWontfix, SummaryFixed, SummaryBackedOut} {
		assert.NoError(t, ValidateSummaryTransition(SummaryInvestigating, to), to)
		assert.True(t, to.IsTerminal())
	}
	assert.ErrorIs(t, ValidateSummaryTransition(SummaryInvestigating, SummaryUntriaged), perferrors.ErrStateTransitionRejected)
	assert.ErrorIs(t, ValidateSummaryTransition(SummaryFixed, SummaryBackedOut), perferrors.ErrStateTransitionRejected)
	assert.ErrorIs(t, ValidateSummaryTransition(SummaryWontfix, SummaryInvestigating), perferrors.ErrStateTransitionRejected)
	assert.ErrorIs(t, ValidateSummaryTransition(SummaryUntriaged, "nope"), perferrors.ErrValidation)
}

func TestSummaryUpdate_Validate(t *testing.T) {
	b := types.BugNumber(5)
	bad := types.BugNumber(0)
	unknown := SummaryStatus("LOST")
	assert.NoError(t, SummaryUpdate{BugNumber: &b}.Validate())
	assert.ErrorIs(t, SummaryUpdate{BugNumber: &b, ClearBugNumber: true}.Validate(), perferrors.ErrValidation)
	assert.ErrorIs(t, SummaryUpdate{BugNumber: &bad}.Validate(), perferrors.ErrValidation)
	assert.ErrorIs(t, SummaryUpdate{Status: &unknown}.Validate(), perferrors.ErrValidation)
}
