package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/testutils"
	"go.treeherder.org/infra/perf/go/alerts"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/sheriff"
	"go.treeherder.org/infra/perf/go/sheriff/mocks"
	"go.treeherder.org/infra/perf/go/types"
)

func setUp(t *testing.T) (*mocks.Service, http.Handler) {
	s := mocks.NewService(t)
	router := chi.NewRouter()
	NewAlertSummaryApi(s, 10).RegisterHandlers(router)
	return s, router
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	h.ServeHTTP(w, r)
	return w
}

func TestSummaryList_ParsesQuery(t *testing.T) {
	s, h := setUp(t)
	page := sheriff.Page{Count: 1, Page: 2, PageSize: 5, Results: []*alerts.Summary{{ID: 3}}}
	s.On("ListSummaries", testutils.AnyContext, sheriff.Filter{
		Repository: "autoland",
		Framework:  1,
		Status:     alerts.SummaryUntriaged,
		Page:       2,
		PageSize:   5,
	}).Return(page, nil)

	w := do(h, http.MethodGet, "/performance/alertsummary?repository=autoland&framework=1&status=UNTRIAGED&page=2&page_size=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got sheriff.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Count)
	require.Len(t, got.Results, 1)
	assert.Equal(t, types.SummaryID(3), got.Results[0].ID)
}

func TestSummaryList_BadQuery_Returns400(t *testing.T) {
	_, h := setUp(t)
	for _, q := range []string{"page=0", "page=x", "framework=abc", "page_size=1000", "since=yesterday"} {
		w := do(h, http.MethodGet, "/performance/alertsummary?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestSummaryGet_Missing_Returns404(t *testing.T) {
	s, h := setUp(t)
	s.On("GetSummary", testutils.AnyContext, types.SummaryID(42)).Return(nil, skerr.Wrapf(perferrors.ErrNotFound, "summary 42"))
	w := do(h, http.MethodGet, "/performance/alertsummary/42", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSummaryUpdate_PassesTargetState(t *testing.T) {
	s, h := setUp(t)
	status := alerts.SummaryFixed
	bug := types.BugNumber(1654321)
	tags := []string{"infra"}
	s.On("UpdateSummary", testutils.AnyContext, types.SummaryID(7), sheriff.SummaryUpdate{
		Status:    &status,
		BugNumber: &bug,
		Tags:      &tags,
	}).Return(&alerts.Summary{ID: 7, Status: status}, nil)

	w := do(h, http.MethodPut, "/performance/alertsummary/7", `{"status": "FIXED", "bug_number": 1654321, "performance_tags": ["infra"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"FIXED"`)
}

func TestSummaryUpdate_UnknownField_Returns400(t *testing.T) {
	_, h := setUp(t)
	w := do(h, http.MethodPut, "/performance/alertsummary/7", `{"colour": "blue"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlertUpdate_RejectedTransition_Returns409(t *testing.T) {
	s, h := setUp(t)
	s.On("SetAlertStatus", testutils.AnyContext, types.AlertID(9), alerts.AlertUpdate{Status: alerts.AlertAcknowledged}).
		Return(nil, skerr.Wrapf(perferrors.ErrStateTransitionRejected, "alert status INVALID -> ACKNOWLEDGED"))

	w := do(h, http.MethodPut, "/performance/alert/9", `{"status": "ACKNOWLEDGED"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID -> ACKNOWLEDGED")
}

func TestAlertUpdate_Reassign_ReturnsAlert(t *testing.T) {
	s, h := setUp(t)
	related := types.SummaryID(12)
	u := alerts.AlertUpdate{Status: alerts.AlertReassigned, RelatedSummaryID: &related, Classifier: "sheriff@example.com"}
	s.On("SetAlertStatus", testutils.AnyContext, types.AlertID(9), u).
		Return(&alerts.Alert{ID: 9, Status: alerts.AlertReassigned, RelatedSummaryID: &related}, nil)

	w := do(h, http.MethodPut, "/performance/alert/9", `{"status": "REASSIGNED", "related_summary_id": 12, "classifier": "sheriff@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var got alerts.Alert
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, alerts.AlertReassigned, got.Status)
}

func TestAlertUpdate_MissingStatus_Returns400(t *testing.T) {
	_, h := setUp(t)
	w := do(h, http.MethodPut, "/performance/alert/9", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlertCreate_Returns201(t *testing.T) {
	s, h := setUp(t)
	m := alerts.ManualAlert{SummaryID: 3, SignatureID: 4, PrevValue: 10, NewValue: 12}
	s.On("CreateManualAlert", testutils.AnyContext, m).Return(&alerts.Alert{ID: 5, SummaryID: 3, ManuallyCreated: true}, nil)

	w := do(h, http.MethodPost, "/performance/alert", `{"summary_id": 3, "signature_id": 4, "prev_value": 10, "new_value": 12}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAlertCreate_Duplicate_Returns409(t *testing.T) {
	s, h := setUp(t)
	m := alerts.ManualAlert{SummaryID: 3, SignatureID: 4, PrevValue: 10, NewValue: 12}
	s.On("CreateManualAlert", testutils.AnyContext, m).Return(nil, skerr.Wrap(perferrors.ErrConflict))

	w := do(h, http.MethodPost, "/performance/alert", `{"summary_id": 3, "signature_id": 4, "prev_value": 10, "new_value": 12}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTags(t *testing.T) {
	s, h := setUp(t)
	s.On("CreateTag", testutils.AnyContext, "infra").Return(alerts.Tag{ID: 1, Name: "infra"}, nil)
	s.On("ListTags", testutils.AnyContext).Return([]alerts.Tag{{ID: 1, Name: "infra"}}, nil)

	w := do(h, http.MethodPost, "/performance/tag", `{"name": "infra"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(h, http.MethodGet, "/performance/tag", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id": 1, "name": "infra"}]`, w.Body.String())
}

func TestOptionCollections_SortedByHash(t *testing.T) {
	s, h := setUp(t)
	s.On("OptionCollections", testutils.AnyContext).Return(map[string][]string{
		"bbb": {"opt"},
		"aaa": {"debug"},
	}, nil)

	w := do(h, http.MethodGet, "/optioncollectionhash", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"option_collection_hash": "aaa", "options": ["debug"]}, {"option_collection_hash": "bbb", "options": ["opt"]}]`, w.Body.String())
}

func TestSummaryList_UpstreamDown_Returns503(t *testing.T) {
	s, h := setUp(t)
	s.On("ListSummaries", testutils.AnyContext, sheriff.Filter{Page: 1, PageSize: 10}).Return(sheriff.Page{}, perferrors.ErrUpstreamUnavailable)
	w := do(h, http.MethodGet, "/performance/alertsummary", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "upstream")
}
