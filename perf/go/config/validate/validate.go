// Package validate loads and validates InstanceConfig files.
package validate

import (
	"bytes"
	"context"
	_ "embed" // For embed functionality.
	"encoding/json"
	"net/url"
	"os"
	"time"

	"go.treeherder.org/infra/go/jsonschema"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/perf/go/changepoint"
	"go.treeherder.org/infra/perf/go/config"
)

// schema is a json schema for InstanceConfig, it is created by
// running go generate on ./generate/main.go.
//
//go:embed instanceConfigSchema.json
var schema []byte

func validateThresholds(name string, th changepoint.Thresholds) error {
	if th.Window < 1 {
		return skerr.Fmt("%s: window must be at least 1, got %d", name, th.Window)
	}
	if th.TThreshold <= 0 {
		return skerr.Fmt("%s: t_threshold must be positive, got %g", name, th.TThreshold)
	}
	if th.PctThreshold < 0 {
		return skerr.Fmt("%s: pct_threshold must not be negative, got %g", name, th.PctThreshold)
	}
	return nil
}

// Validate returns an error if the InstanceConfig is not usable. Validate
// should be called after ApplyDefaults.
func Validate(i config.InstanceConfig) error {
	if i.DataStoreConfig.ConnectionString == "" {
		return skerr.Fmt("data_store_config.connection_string must be supplied")
	}
	if _, err := url.Parse(i.DataStoreConfig.ConnectionString); err != nil {
		return skerr.Wrapf(err, "parsing data_store_config.connection_string")
	}
	q := i.QueueConfig
	if q.IngestTopic == "" || q.DetectTopic == "" || q.DeadLetterTopic == "" {
		return skerr.Fmt("queue_config must name the ingest, detect and dead letter topics")
	}
	if q.DeadLetterTopic == q.DetectTopic {
		return skerr.Fmt("queue_config.dead_letter_topic must differ from detect_topic")
	}

	d := i.DetectionConfig
	if err := validateThresholds("detection_config.default", d.Default); err != nil {
		return err
	}
	for name, th := range d.Frameworks {
		if err := validateThresholds("detection_config.frameworks."+name, th); err != nil {
			return err
		}
	}
	if d.SeriesLength < 2*d.Default.Window {
		return skerr.Fmt("detection_config.series_length (%d) must be at least twice the default window (%d)", d.SeriesLength, d.Default.Window)
	}
	if time.Duration(d.Deadline) <= 0 {
		return skerr.Fmt("detection_config.deadline must be positive")
	}
	r := d.Retry
	if r.Factor < 1 {
		return skerr.Fmt("detection_config.retry.factor must be at least 1, got %g", r.Factor)
	}
	if r.Cap < r.Base {
		return skerr.Fmt("detection_config.retry.cap must not be less than retry.base")
	}
	if r.MaxAttempts < 1 {
		return skerr.Fmt("detection_config.retry.max_attempts must be at least 1")
	}

	if i.IssueTrackerConfig.URL != "" {
		if _, err := url.ParseRequestURI(i.IssueTrackerConfig.URL); err != nil {
			return skerr.Wrapf(err, "parsing issue_tracker_config.url")
		}
	}
	if i.FrontendConfig.PageSize < 1 {
		return skerr.Fmt("frontend_config.page_size must be at least 1")
	}
	return nil
}

// InstanceConfigFromFile returns the deserialized JSON of an InstanceConfig
// found in filename, with defaults applied.
//
// If there was an error loading the file a list of schema violations may be
// returned also.
func InstanceConfigFromFile(filename string) (*config.InstanceConfig, []string, error) {
	ctx := context.Background()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, skerr.Wrapf(err, "read file %q", filename)
	}

	schemaViolations, err := jsonschema.Validate(ctx, b, schema)
	if err != nil {
		return nil, schemaViolations, skerr.Wrapf(err, "validate instance config %q", filename)
	}

	var instanceConfig config.InstanceConfig
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&instanceConfig); err != nil {
		return nil, nil, skerr.Wrapf(err, "decode instance config %q", filename)
	}
	instanceConfig.ApplyDefaults()

	if err := Validate(instanceConfig); err != nil {
		return nil, nil, skerr.Wrapf(err, "validate instance config %q", filename)
	}
	return &instanceConfig, nil, nil
}
