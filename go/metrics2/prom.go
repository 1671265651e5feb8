package metrics2

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.treeherder.org/infra/go/sklog"
)

// invalidChar forces metric and tag names to conform to Prometheus's
// restrictions.
var invalidChar = regexp.MustCompile("([^a-zA-Z0-9_:])")

func clean(s string) string {
	return invalidChar.ReplaceAllLiteralString(s, "_")
}

// promCounter implements Counter. The value is tracked locally because the
// prometheus client does not support reading a gauge.
type promCounter struct {
	i     int64
	gauge prometheus.Gauge
}

func (c *promCounter) Inc(i int64) {
	c.gauge.Set(float64(atomic.AddInt64(&c.i, i)))
}

func (c *promCounter) Get() int64 {
	return atomic.LoadInt64(&c.i)
}

func (c *promCounter) Reset() {
	atomic.StoreInt64(&c.i, 0)
	c.gauge.Set(0)
}

type promSummary struct {
	summary prometheus.Observer
}

func (s *promSummary) Observe(v float64) {
	s.summary.Observe(v)
}

type promClient struct {
	mutex      sync.Mutex
	gaugeVecs  map[string]*prometheus.GaugeVec
	counters   map[string]*promCounter
	summaryVec map[string]*prometheus.SummaryVec
	summaries  map[string]*promSummary
}

func newPromClient() *promClient {
	return &promClient{
		gaugeVecs:  map[string]*prometheus.GaugeVec{},
		counters:   map[string]*promCounter{},
		summaryVec: map[string]*prometheus.SummaryVec{},
		summaries:  map[string]*promSummary{},
	}
}

// commonGet cleans the name and merges the tags. It returns the clean name,
// the clean tags, their sorted keys, a key unique to this metric and a key
// unique to the vector (the name plus the label names).
func commonGet(name string, tags ...map[string]string) (string, map[string]string, []string, string, string) {
	name = clean(name)
	cleanTags := map[string]string{}
	for _, m := range tags {
		for k, v := range m {
			cleanTags[clean(k)] = v
		}
	}
	keys := make([]string, 0, len(cleanTags))
	for k := range cleanTags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, k+"="+cleanTags[k])
	}
	vecKey := name + " [" + strings.Join(keys, ",") + "]"
	metricKey := name + " {" + strings.Join(values, ",") + "}"
	return name, cleanTags, keys, metricKey, vecKey
}

func (p *promClient) GetCounter(name string, tags ...map[string]string) Counter {
	name, cleanTags, keys, metricKey, vecKey := commonGet(name, tags...)
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if c, ok := p.counters[metricKey]; ok {
		return c
	}
	vec, ok := p.gaugeVecs[vecKey]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: name,
		}, keys)
		if err := prometheus.Register(vec); err != nil {
			sklog.Fatalf("Failed to register %q: %s", vecKey, err)
		}
		p.gaugeVecs[vecKey] = vec
	}
	g, err := vec.GetMetricWith(cleanTags)
	if err != nil {
		sklog.Fatalf("Failed to get gauge %q: %s", metricKey, err)
	}
	c := &promCounter{gauge: g}
	p.counters[metricKey] = c
	return c
}

func (p *promClient) GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric {
	name, cleanTags, keys, metricKey, vecKey := commonGet(name, tags...)
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if s, ok := p.summaries[metricKey]; ok {
		return s
	}
	vec, ok := p.summaryVec[vecKey]
	if !ok {
		vec = prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       name,
			Help:       name,
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, keys)
		if err := prometheus.Register(vec); err != nil {
			sklog.Fatalf("Failed to register %q: %s", vecKey, err)
		}
		p.summaryVec[vecKey] = vec
	}
	o, err := vec.GetMetricWith(cleanTags)
	if err != nil {
		sklog.Fatalf("Failed to get summary %q: %s", metricKey, err)
	}
	s := &promSummary{summary: o}
	p.summaries[metricKey] = s
	return s
}

var _ Counter = (*promCounter)(nil)
var _ Float64SummaryMetric = (*promSummary)(nil)
