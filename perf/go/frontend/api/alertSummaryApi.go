package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.treeherder.org/infra/go/httputils"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/perf/go/alerts"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/sheriff"
	"go.treeherder.org/infra/perf/go/types"
)

const (
	defaultDatabaseTimeout = config.DefaultDatabaseTimeout

	// maxPageSize caps the page_size query parameter.
	maxPageSize = 100
)

// alertSummaryApi provides the REST endpoints for alert summaries, alerts
// and tags.
type alertSummaryApi struct {
	sheriff  sheriff.Service
	pageSize int
}

// NewAlertSummaryApi returns a new instance of the alertSummaryApi struct.
func NewAlertSummaryApi(s sheriff.Service, pageSize int) alertSummaryApi {
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	return alertSummaryApi{
		sheriff:  s,
		pageSize: pageSize,
	}
}

// RegisterHandlers registers the api handlers for their respective routes.
func (a alertSummaryApi) RegisterHandlers(router chi.Router) {
	router.Get("/performance/alertsummary", a.summaryListHandler)
	router.Get("/performance/alertsummary/{id:[0-9]+}", a.summaryGetHandler)
	router.Put("/performance/alertsummary/{id:[0-9]+}", a.summaryUpdateHandler)
	router.Put("/performance/alert/{id:[0-9]+}", a.alertUpdateHandler)
	router.Post("/performance/alert", a.alertCreateHandler)
	router.Get("/performance/tag", a.tagListHandler)
	router.Post("/performance/tag", a.tagCreateHandler)
	router.Get("/optioncollectionhash", a.optionCollectionHandler)
}

// reportError responds with the status code of the kind of err. Client
// errors carry the error text, server errors only the message.
func reportError(w http.ResponseWriter, err error, message string) {
	code := perferrors.HTTPStatus(err)
	if code < http.StatusInternalServerError {
		message = fmt.Sprintf("%s: %s", message, err)
	}
	httputils.ReportError(w, err, message, code)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		sklog.Errorf("Failed to write JSON response: %s", err)
	}
}

// decodeBody decodes a JSON request body into dst, refusing unknown fields.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return skerr.Wrapf(perferrors.ErrValidation, "invalid JSON body: %s", err)
	}
	return nil
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, skerr.Wrapf(perferrors.ErrValidation, "invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, skerr.Wrapf(perferrors.ErrValidation, "invalid %s %q, want RFC3339", name, s)
	}
	return t, nil
}

// parseFilter reads the summary list filter from the query parameters.
func (a alertSummaryApi) parseFilter(r *http.Request) (sheriff.Filter, error) {
	q := r.URL.Query()
	f := sheriff.Filter{
		Repository: q.Get("repository"),
		Status:     alerts.SummaryStatus(q.Get("status")),
	}
	if s := q.Get("framework"); s != "" {
		fw, err := strconv.ParseInt(s, 10, 64)
		if err != nil || fw < 1 {
			return f, skerr.Wrapf(perferrors.ErrValidation, "invalid framework %q", s)
		}
		f.Framework = types.FrameworkID(fw)
	}
	pageSize := a.pageSize
	if s := q.Get("page_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxPageSize {
			return f, skerr.Wrapf(perferrors.ErrValidation, "invalid page_size %q", s)
		}
		pageSize = n
	}
	offset, limit, err := httputils.PageParams(q, pageSize)
	if err != nil {
		return f, skerr.Wrapf(perferrors.ErrValidation, "%s", err)
	}
	f.Page = offset/limit + 1
	f.PageSize = limit

	if f.Since, err = timeParam(r, "since"); err != nil {
		return f, err
	}
	if f.Until, err = timeParam(r, "until"); err != nil {
		return f, err
	}
	return f, nil
}

// summaryListHandler returns a page of summaries.
func (a alertSummaryApi) summaryListHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultDatabaseTimeout)
	defer cancel()

	f, err := a.parseFilter(r)
	if err != nil {
		reportError(w, err, "Invalid query")
		return
	}
	page, err := a.sheriff.ListSummaries(ctx, f)
	if err != nil {
		reportError(w, err, "Failed to list alert summaries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// summaryGetHandler returns one summary.
func (a alertSummaryApi) summaryGetHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultDatabaseTimeout)
	defer cancel()

	id, err := idParam(r)
	if err != nil {
		reportError(w, err, "Invalid summary id")
		return
	}
	s, err := a.sheriff.GetSummary(ctx, types.SummaryID(id))
	if err != nil {
		reportError(w, err, "Failed to load alert summary")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// summaryUpdateHandler changes the status, bug, notes or tags of a summary.
func (a alertSummaryApi) summaryUpdateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultDatabaseTimeout)
	defer cancel()

	id, err := idParam(r)
	if err != nil {
		reportError(w, err, "Invalid summary id")
		return
	}
	var u sheriff.SummaryUpdate
	if err := decodeBody(r, &u); err != nil {
		reportError(w, err, "Failed to decode JSON")
		return
	}
	s, err := a.sheriff.UpdateSummary(ctx, types.SummaryID(id), u)
	if err != nil {
		reportError(w, err, "Failed to update alert summary")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// alertUpdateHandler moves an alert to a new status.
func (a alertSummaryApi) alertUpdateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultDatabaseTimeout)
	defer cancel()

	id, err := idParam(r)
	if err != nil {
		reportError(w, err, "Invalid alert id")
		return
	}
	var u alerts.AlertUpdate
	if err := decodeBody(r, &u); err != nil {
		reportError(w, err, "Failed to decode JSON")
		return
	}
	if u.Status == "" {
		reportError(w, skerr.Wrapf(perferrors.ErrValidation, "status is required"), "Invalid alert update")
		return
	}
	alert, err := a.sheriff.SetAlertStatus(ctx, types.AlertID(id), u)
	if err != nil {
		reportError(w, err, "Failed to update alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// alertCreateHandler creates a manual alert.
func (a alertSummaryApi) alertCreateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultDatabaseTimeout)
	defer cancel()

	var m alerts.ManualAlert
	if err := decodeBody(r, &m); err != nil {
		reportError(w, err, "Failed to decode JSON")
		return
	}
	alert, err := a.sheriff.CreateManualAlert(ctx, m)
	if err != nil {
		reportError(w, err, "Failed to create alert")
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

// tagListHandler returns every tag.
func (a alertSummaryApi) tagListHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultDatabaseTimeout)
	defer cancel()

	tags, err := a.sheriff.ListTags(ctx)
	if err != nil {
		reportError(w, err, "Failed to list tags")
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// TagCreateRequest is the body of a POST to /performance/tag.
type TagCreateRequest struct {
	Name string `json:"name"`
}

// tagCreateHandler creates a tag.
func (a alertSummaryApi) tagCreateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultDatabaseTimeout)
	defer cancel()

	var req TagCreateRequest
	if err := decodeBody(r, &req); err != nil {
		reportError(w, err, "Failed to decode JSON")
		return
	}
	tag, err := a.sheriff.CreateTag(ctx, req.Name)
	if err != nil {
		reportError(w, err, "Failed to create tag")
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

// OptionCollection is one entry of the /optioncollectionhash response.
type OptionCollection struct {
	Hash    string   `json:"option_collection_hash"`
	Options []string `json:"options"`
}

// optionCollectionHandler lists the option collections, ordered by hash.
func (a alertSummaryApi) optionCollectionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultDatabaseTimeout)
	defer cancel()

	collections, err := a.sheriff.OptionCollections(ctx)
	if err != nil {
		reportError(w, err, "Failed to list option collections")
		return
	}
	ret := make([]OptionCollection, 0, len(collections))
	for hash, options := range collections {
		ret = append(ret, OptionCollection{Hash: hash, Options: options})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Hash < ret[j].Hash })
	writeJSON(w, http.StatusOK, ret)
}
