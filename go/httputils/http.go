// Package httputils holds the HTTP helpers shared by the servers and clients:
// request logging, error reporting, health checks and a retrying transport.
package httputils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.treeherder.org/infra/go/metrics2"
	"go.treeherder.org/infra/go/sklog"
)

const (
	// MaxBytesInResponseBody limits how much of an error body is logged.
	MaxBytesInResponseBody = 10 * 1024
)

var (
	errServer = errors.New("received server error")
	errClient = errors.New("received client error")
)

// HealthCheckHandler returns 200 OK with an info message.
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("All good.")); err != nil {
		sklog.Errorf("Failed to write health check response: %s", err)
	}
}

// Healthz answers /healthz with 200 and passes every other request to h.
func Healthz(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// RunHealthCheckServer runs an HTTP server that only handles health checks,
// for processes that don't serve HTTP otherwise. It returns when ctx is
// cancelled.
func RunHealthCheckServer(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:    port,
		Handler: Healthz(http.NotFoundHandler()),
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// BackOffConfig controls BackOffTransport.
type BackOffConfig struct {
	// InitialInterval is the wait before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps the wait between retries.
	MaxInterval time.Duration
	// Multiplier grows the interval after every retry.
	Multiplier float64
	// RandomizationFactor adds jitter, 0 disables it.
	RandomizationFactor float64
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
	// AttemptTimeout bounds each attempt. Zero means no per attempt bound.
	AttemptTimeout time.Duration
}

// DefaultBackOffConfig returns the config used for outbound calls to other
// services: 10s per attempt and at most 3 retries.
func DefaultBackOffConfig() BackOffConfig {
	return BackOffConfig{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
		MaxRetries:          3,
		AttemptTimeout:      10 * time.Second,
	}
}

// BackOffTransport retries transport errors and 5xx responses with
// exponential backoff. Other non 2xx responses are returned unchanged.
type BackOffTransport struct {
	Transport http.RoundTripper
	config    BackOffConfig
}

// NewBackOffTransport wraps base, http.DefaultTransport if nil.
func NewBackOffTransport(config BackOffConfig, base http.RoundTripper) *BackOffTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &BackOffTransport{
		Transport: base,
		config:    config,
	}
}

// NewBackOffClient returns an http.Client that uses a BackOffTransport.
func NewBackOffClient(config BackOffConfig) *http.Client {
	return &http.Client{
		Transport: NewBackOffTransport(config, nil),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *BackOffTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = t.config.InitialInterval
	exp.MaxInterval = t.config.MaxInterval
	exp.Multiplier = t.config.Multiplier
	exp.RandomizationFactor = t.config.RandomizationFactor
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, t.config.MaxRetries), req.Context())

	// Copy the body so that it can be replayed on every attempt.
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		_ = req.Body.Close()
	}

	var resp *http.Response
	attempt := func() error {
		r := req
		cancel := context.CancelFunc(func() {})
		if t.config.AttemptTimeout > 0 {
			var ctx context.Context
			ctx, cancel = context.WithTimeout(req.Context(), t.config.AttemptTimeout)
			r = req.Clone(ctx)
		}
		if body != nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		var err error
		resp, err = t.Transport.RoundTrip(r)
		if err != nil {
			cancel()
			return err
		}
		// Buffer the body so the per attempt context can be released.
		b, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*MaxBytesInResponseBody))
		_ = resp.Body.Close()
		cancel()
		if readErr != nil {
			return readErr
		}
		resp.Body = io.NopCloser(bytes.NewReader(b))
		if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
			return errServer
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return backoff.Permanent(errClient)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		if err == errServer {
			sklog.Warningf("Got status %d from %s %s, retrying in %s", resp.StatusCode, req.Method, req.URL, wait)
			return
		}
		sklog.Warningf("Round trip to %s failed: %s. Retrying in %s", req.URL, err, wait)
	}

	err := backoff.RetryNotify(attempt, policy, notify)
	if err == nil || errors.Is(err, errClient) || errors.Is(err, errServer) {
		return resp, nil
	}
	return nil, err
}

// ReadAndClose reads the content of a ReadCloser, e.g. an http Response, and
// returns it as a quoted string. The reader is closed.
func ReadAndClose(r io.ReadCloser) string {
	if r == nil {
		return ""
	}
	defer func() {
		_ = r.Close()
	}()
	b, err := io.ReadAll(io.LimitReader(r, MaxBytesInResponseBody))
	if err != nil {
		sklog.Warningf("Failed reading the response body: %s", err)
		return ""
	}
	return fmt.Sprintf("%q", string(b))
}

// ReportError formats an HTTP error response and also logs the detailed error
// message. The message is returned in the HTTP response, "Unknown error" if
// empty.
func ReportError(w http.ResponseWriter, err error, message string, code int) {
	sklog.ErrorfWithDepth(1, "%s: %s", message, err)
	if err != io.ErrClosedPipe {
		if message == "" {
			message = "Unknown error"
		}
		http.Error(w, message, code)
	}
}

// responseProxy records the status code of a response.
type responseProxy struct {
	http.ResponseWriter
	wroteHeader bool
}

func (rp *responseProxy) WriteHeader(code int) {
	if !rp.wroteHeader {
		metrics2.GetCounter("http_response", map[string]string{"statuscode": strconv.Itoa(code)}).Inc(1)
		rp.ResponseWriter.WriteHeader(code)
		rp.wroteHeader = true
	}
}

// LoggingRequestResponse logs every request, records response codes and
// latency, and turns a panic in h into a 500.
func LoggingRequestResponse(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sklog.Debugf("Incoming request: %s %s", r.Method, r.URL.Path)
		defer func() {
			if err := recover(); err != nil {
				const size = 64 << 10
				buf := make([]byte, size)
				buf = buf[:runtime.Stack(buf, false)]
				sklog.Errorf("panic serving %v: %v\n%s", r.URL.Path, err, buf)
				http.Error(w, "Error handling request", http.StatusInternalServerError)
			}
		}()
		defer metrics2.NewTimer("http_request", map[string]string{"method": r.Method}).Stop()
		h.ServeHTTP(&responseProxy{ResponseWriter: w}, r)
	})
}

// PageParams reads the 1-based "page" query parameter and returns the offset
// and limit for a page of the given size. A missing page means page 1.
func PageParams(query url.Values, pageSize int) (offset int, limit int, err error) {
	page := 1
	if s := query.Get("page"); s != "" {
		page, err = strconv.Atoi(s)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("invalid page %q", s)
		}
	}
	return (page - 1) * pageSize, pageSize, nil
}
