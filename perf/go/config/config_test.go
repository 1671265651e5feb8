package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/perf/go/changepoint"
)

func TestDurationAsString_RoundTrip(t *testing.T) {
	b, err := json.Marshal(DurationAsString(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))

	var d DurationAsString
	require.NoError(t, json.Unmarshal([]byte(`"30m"`), &d))
	assert.Equal(t, 30*time.Minute, time.Duration(d))

	assert.Error(t, json.Unmarshal([]byte(`"thirty"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`30`), &d))
}

func TestDurationAsString_JSONSchema_IsString(t *testing.T) {
	s := DurationAsString(0).JSONSchema()
	assert.Equal(t, "string", s.Type)
	assert.Equal(t, "Duration", s.Title)
}

func TestApplyDefaults_EmptyConfig_GetsDocumentedDefaults(t *testing.T) {
	var i InstanceConfig
	i.ApplyDefaults()

	assert.Equal(t, changepoint.DefaultThresholds(), i.DetectionConfig.Default)
	assert.Equal(t, DurationAsString(60*time.Second), i.DetectionConfig.Deadline)
	assert.Equal(t, DurationAsString(30*time.Second), i.DetectionConfig.Retry.Base)
	assert.Equal(t, 2.0, i.DetectionConfig.Retry.Factor)
	assert.Equal(t, DurationAsString(30*time.Minute), i.DetectionConfig.Retry.Cap)
	assert.Equal(t, 5, i.DetectionConfig.Retry.MaxAttempts)
	assert.Equal(t, DurationAsString(10*time.Second), i.IssueTrackerConfig.Timeout)
	assert.Equal(t, 3, i.IssueTrackerConfig.MaxRetries)
	assert.Equal(t, DefaultPageSize, i.FrontendConfig.PageSize)
}

func TestThresholdsFor_OverrideAndFallback(t *testing.T) {
	awsy := changepoint.Thresholds{Window: 6, TThreshold: 5, PctThreshold: 0.05}
	d := DetectionConfig{
		Default:    changepoint.DefaultThresholds(),
		Frameworks: map[string]changepoint.Thresholds{"awsy": awsy},
	}
	assert.Equal(t, awsy, d.ThresholdsFor("awsy"))
	assert.Equal(t, changepoint.DefaultThresholds(), d.ThresholdsFor("talos"))
}

func TestWorkerFlags_Register(t *testing.T) {
	var flags WorkerFlags
	fs := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	flags.Register(fs)
	require.NoError(t, fs.Parse([]string{"--config_filename=x.json", "--local", "--num_goroutines=8"}))
	assert.Equal(t, "x.json", flags.ConfigFilename)
	assert.True(t, flags.Local)
	assert.Equal(t, 8, flags.NumGoroutines)
}
