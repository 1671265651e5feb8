package metrics2

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "a_b_c", clean("a.b-c"))
}

func scrape(t *testing.T, reg *prometheus.Registry) string {
	req := httptest.NewRequest("GET", "/metrics", nil)
	rw := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling:      promhttp.PanicOnError,
		DisableCompression: true,
	}).ServeHTTP(rw, req)
	b, err := io.ReadAll(rw.Result().Body)
	require.NoError(t, err)
	return string(b)
}

func TestGetCounter_SameNameAndTags_ReturnsSameCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	c := GetCounter("perf_alerts_created", map[string]string{"framework": "talos"})
	c.Inc(2)
	GetCounter("perf_alerts_created", map[string]string{"framework": "talos"}).Inc(1)
	assert.Equal(t, int64(3), c.Get())
	assert.Contains(t, scrape(t, reg), `perf_alerts_created{framework="talos"} 3`)

	c.Reset()
	assert.Equal(t, int64(0), c.Get())
}

func TestNewTimer_Stop_ObservesSummary(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	NewTimer("detect").Stop()
	body := scrape(t, reg)
	lines := strings.Split(body, "\n")
	found := false
	for _, l := range lines {
		if strings.HasPrefix(l, `timer_count{name="detect"}`) {
			found = true
			assert.Equal(t, `timer_count{name="detect"} 1`, l)
		}
	}
	assert.True(t, found, body)
}
