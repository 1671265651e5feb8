// Package metrics2 is a thin layer over Prometheus. Metrics are created on
// first use and cached by name and tags, so callers can ask for the same
// counter from several places.
package metrics2

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.treeherder.org/infra/go/sklog"
)

// Counter is a metric that only goes up, apart from Reset.
type Counter interface {
	// Inc adds i to the counter.
	Inc(i int64)
	// Get returns the current value.
	Get() int64
	// Reset sets the counter to zero.
	Reset()
}

// Float64SummaryMetric tracks the distribution of observed values.
type Float64SummaryMetric interface {
	Observe(v float64)
}

// defaultClient is used by the package level functions.
var defaultClient = newPromClient()

// GetCounter returns the Counter with the given name and tags.
func GetCounter(name string, tags ...map[string]string) Counter {
	return defaultClient.GetCounter(name, tags...)
}

// GetFloat64SummaryMetric returns the summary with the given name and tags.
func GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric {
	return defaultClient.GetFloat64SummaryMetric(name, tags...)
}

// Timer reports the time elapsed between NewTimer and Stop, in seconds, to a
// summary metric.
type Timer struct {
	begin  time.Time
	metric Float64SummaryMetric
}

// NewTimer starts a Timer that reports to the "timer" summary, tagged with
// the given name.
//
//	defer metrics2.NewTimer("detect_push").Stop()
func NewTimer(name string, tags ...map[string]string) *Timer {
	t := map[string]string{"name": name}
	for _, m := range tags {
		for k, v := range m {
			t[k] = v
		}
	}
	return &Timer{
		begin:  time.Now(),
		metric: defaultClient.GetFloat64SummaryMetric("timer", t),
	}
}

// Stop reports the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.begin)
	t.metric.Observe(d.Seconds())
	return d
}

// InitPrometheus serves the registered metrics at /metrics on the given
// address, e.g. ":20000", in a background goroutine.
func InitPrometheus(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		sklog.Infof("Serving metrics at %s/metrics", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			sklog.Errorf("Metrics server failed: %s", err)
		}
	}()
}

// Register makes the collectors of this package visible through reg instead
// of the default registry. Used by tests.
func Register(reg *prometheus.Registry) {
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	defaultClient = newPromClient()
}
