// Package frontend serves the REST API used by sheriffs.
package frontend

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.treeherder.org/infra/go/httputils"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/perf/go/builders"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/frontend/api"
	"go.treeherder.org/infra/perf/go/sheriff"
)

// shutdownTimeout is how long in-flight requests get to finish after the
// context passed to Serve is cancelled.
const shutdownTimeout = 10 * time.Second

// Frontend is the server for the REST API.
type Frontend struct {
	flags          *config.FrontendFlags
	instanceConfig *config.InstanceConfig
	sheriff        sheriff.Service
}

// New returns a new Frontend with every store connected.
func New(ctx context.Context, flags *config.FrontendFlags, instanceConfig *config.InstanceConfig) (*Frontend, error) {
	stores, err := builders.NewStoresFromConfig(ctx, instanceConfig)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed to build stores.")
	}
	s, err := builders.NewSheriffFromStores(stores, instanceConfig)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed to build sheriff service.")
	}
	return &Frontend{
		flags:          flags,
		instanceConfig: instanceConfig,
		sheriff:        s,
	}, nil
}

// GetHandler returns the root handler of the server.
func (f *Frontend) GetHandler() http.Handler {
	router := chi.NewRouter()
	api.NewAlertSummaryApi(f.sheriff, f.instanceConfig.FrontendConfig.PageSize).RegisterHandlers(router)

	var h http.Handler = router
	if origins := f.instanceConfig.FrontendConfig.AllowedOrigins; len(origins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(h)
	}
	return httputils.LoggingRequestResponse(httputils.Healthz(h))
}

// Serve the API until ctx is cancelled.
func (f *Frontend) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              f.flags.Port,
		Handler:           f.GetHandler(),
		ReadHeaderTimeout: time.Minute,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			sklog.Errorf("Failed to shut down: %s", err)
		}
	}()
	sklog.Infof("Ready to serve on %s", f.flags.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return skerr.Wrap(err)
	}
	return nil
}
