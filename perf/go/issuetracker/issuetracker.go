// Package issuetracker verifies bug numbers against a Bugzilla instance.
package issuetracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.treeherder.org/infra/go/httputils"
	"go.treeherder.org/infra/go/metrics2"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/types"
)

const (
	// cacheExpiration is how long the answer for one bug is remembered.
	cacheExpiration = 10 * time.Minute

	// bugzillaInvalidBug is the Bugzilla error code for a bug that doesn't
	// exist.
	bugzillaInvalidBug = 101
)

// IssueTracker looks up bugs.
type IssueTracker interface {
	// BugExists returns true if the bug exists in the tracker. A bug that
	// exists but is not visible to us counts as existing.
	BugExists(ctx context.Context, bug types.BugNumber) (bool, error)
}

// bugzillaResponse is the part of a /rest/bug/{id} response we read.
type bugzillaResponse struct {
	Bugs []struct {
		ID int64 `json:"id"`
	} `json:"bugs"`
	Error bool `json:"error"`
	Code  int  `json:"code"`
}

// Bugzilla implements IssueTracker with the Bugzilla REST API.
type Bugzilla struct {
	client  *http.Client
	baseURL string
	cache   *cache.Cache

	lookups     metrics2.Counter
	cacheHits   metrics2.Counter
	unavailable metrics2.Counter
}

// New returns a Bugzilla client for the configured instance.
func New(cfg config.IssueTrackerConfig) (*Bugzilla, error) {
	if cfg.URL == "" {
		return nil, skerr.Fmt("an issue tracker URL is required")
	}
	bo := httputils.DefaultBackOffConfig()
	if cfg.Timeout > 0 {
		bo.AttemptTimeout = time.Duration(cfg.Timeout)
	}
	if cfg.MaxRetries > 0 {
		bo.MaxRetries = uint64(cfg.MaxRetries)
	}
	return newBugzilla(cfg.URL, bo), nil
}

func newBugzilla(baseURL string, bo httputils.BackOffConfig) *Bugzilla {
	return &Bugzilla{
		client:      httputils.NewBackOffClient(bo),
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		cache:       cache.New(cacheExpiration, 2*cacheExpiration),
		lookups:     metrics2.GetCounter("perf_issuetracker_lookups"),
		cacheHits:   metrics2.GetCounter("perf_issuetracker_cache_hits"),
		unavailable: metrics2.GetCounter("perf_issuetracker_unavailable"),
	}
}

// BugExists implements IssueTracker.
func (b *Bugzilla) BugExists(ctx context.Context, bug types.BugNumber) (bool, error) {
	if !bug.IsValid() {
		return false, skerr.Wrapf(perferrors.ErrValidation, "bug number must be positive, got %d", bug)
	}
	key := bug.String()
	if exists, ok := b.cache.Get(key); ok {
		b.cacheHits.Inc(1)
		return exists.(bool), nil
	}
	b.lookups.Inc(1)

	u := fmt.Sprintf("%s/rest/bug/%d?include_fields=id", b.baseURL, bug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, skerr.Wrapf(err, "building request for bug %d", bug)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		b.unavailable.Inc(1)
		return false, skerr.Wrapf(perferrors.ErrUpstreamUnavailable, "looking up bug %d: %s", bug, err)
	}
	defer httputils.ReadAndClose(resp.Body)

	var exists bool
	switch {
	case resp.StatusCode >= 500:
		b.unavailable.Inc(1)
		return false, skerr.Wrapf(perferrors.ErrUpstreamUnavailable, "looking up bug %d: status %d", bug, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Security bugs are hidden from anonymous users.
		exists = true
	case resp.StatusCode == http.StatusNotFound:
		exists = false
	default:
		var body bugzillaResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, skerr.Wrapf(perferrors.ErrUpstreamUnavailable, "decoding response for bug %d: %s", bug, err)
		}
		if body.Error && body.Code != bugzillaInvalidBug {
			return false, skerr.Wrapf(perferrors.ErrUpstreamUnavailable, "bugzilla error %d for bug %d", body.Code, bug)
		}
		exists = !body.Error && len(body.Bugs) > 0
	}
	sklog.Debugf("Bug %d exists: %t", bug, exists)
	b.cache.SetDefault(key, exists)
	return exists, nil
}

// Confirm Bugzilla implements IssueTracker.
var _ IssueTracker = (*Bugzilla)(nil)
