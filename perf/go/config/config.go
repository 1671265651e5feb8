// Package config holds the configuration of a Perf alerts instance. The
// configuration is a JSON file, see ../../configs for examples, validated by
// ./validate.
package config

import (
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/spf13/pflag"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/perf/go/changepoint"
)

const (
	// DefaultSeriesLength is the number of most recent data per signature
	// that a detection run reads.
	DefaultSeriesLength = 200

	// DefaultDetectDeadline is the soft deadline of a detection run for one
	// signature.
	DefaultDetectDeadline = 60 * time.Second

	// DefaultPageSize of the alert summary list.
	DefaultPageSize = 10

	// DefaultDatabaseTimeout bounds every request made by the frontend.
	DefaultDatabaseTimeout = time.Minute
)

// Retry defaults for detect tasks.
const (
	DefaultRetryBase        = 30 * time.Second
	DefaultRetryFactor      = 2.0
	DefaultRetryCap         = 30 * time.Minute
	DefaultRetryMaxAttempts = 5
)

// Issue tracker defaults.
const (
	DefaultIssueTrackerTimeout    = 10 * time.Second
	DefaultIssueTrackerMaxRetries = 3
)

// DurationAsString is a time.Duration that serializes to JSON as a string,
// e.g. "30s".
type DurationAsString time.Duration

// MarshalJSON implements json.Marshaler.
func (d DurationAsString) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DurationAsString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return skerr.Wrap(err)
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return skerr.Wrap(err)
	}
	*d = DurationAsString(duration)
	return nil
}

// JSONSchema implements the interface used by invopop/jsonschema.
func (DurationAsString) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Title:       "Duration",
		Description: "A golang time.Duration serialized as a string.",
	}
}

// DataStoreConfig is the configuration for the database.
type DataStoreConfig struct {
	// ConnectionString is a Postgres style URL, e.g.
	// postgresql://root@localhost:26257/perf?sslmode=disable
	ConnectionString string `json:"connection_string"`

	// MaxConns limits the size of the connection pool. 0 leaves pgx's
	// default.
	MaxConns int32 `json:"max_conns,omitempty"`
}

// QueueConfig is the configuration of the task queue.
type QueueConfig struct {
	// Project is the Google Cloud project of the PubSub topics.
	Project string `json:"project"`

	// IngestTopic carries perf.ingest messages.
	IngestTopic string `json:"ingest_topic"`

	// DetectTopic carries perf.detect messages.
	DetectTopic string `json:"detect_topic"`

	// DeadLetterTopic receives detect tasks that ran out of attempts.
	DeadLetterTopic string `json:"dead_letter_topic"`

	// PublishDetectAfterIngest makes the ingest worker publish a perf.detect
	// message for every push it ingests data for, at most once a minute per
	// push.
	PublishDetectAfterIngest bool `json:"publish_detect_after_ingest,omitempty"`
}

// RetryConfig is the exponential backoff of failed detect tasks.
type RetryConfig struct {
	Base        DurationAsString `json:"base,omitempty"`
	Factor      float64          `json:"factor,omitempty"`
	Cap         DurationAsString `json:"cap,omitempty"`
	MaxAttempts int              `json:"max_attempts,omitempty"`
}

// DetectionConfig is the configuration of the change point detector.
type DetectionConfig struct {
	// Default thresholds, used for every framework not in Frameworks.
	Default changepoint.Thresholds `json:"default"`

	// Frameworks overrides the thresholds per framework name.
	Frameworks map[string]changepoint.Thresholds `json:"frameworks,omitempty"`

	// SeriesLength is the number of most recent data read per signature.
	SeriesLength int `json:"series_length,omitempty"`

	// Deadline is the soft deadline of detection for one signature.
	Deadline DurationAsString `json:"deadline,omitempty"`

	// Retry controls re-queueing of detect tasks that failed.
	Retry RetryConfig `json:"retry,omitempty"`
}

// ThresholdsFor returns the thresholds of the named framework.
func (d DetectionConfig) ThresholdsFor(framework string) changepoint.Thresholds {
	if th, ok := d.Frameworks[framework]; ok {
		return th
	}
	return d.Default
}

// IssueTrackerConfig is the configuration of the bug tracker client.
type IssueTrackerConfig struct {
	// URL of the Bugzilla instance, e.g. https://bugzilla.mozilla.org. If
	// empty bug numbers are not verified.
	URL string `json:"url,omitempty"`

	// Timeout of each request.
	Timeout DurationAsString `json:"timeout,omitempty"`

	// MaxRetries on transport errors.
	MaxRetries int `json:"max_retries,omitempty"`
}

// FrontendConfig is the configuration of the REST API.
type FrontendConfig struct {
	// PageSize of the alert summary list.
	PageSize int `json:"page_size,omitempty"`

	// AllowedOrigins for CORS requests. Empty disables CORS.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// InstanceConfig contains all the info needed by a Perf alerts instance.
type InstanceConfig struct {
	// URL is the root URL of the instance.
	URL string `json:"URL"`

	DataStoreConfig    DataStoreConfig    `json:"data_store_config"`
	QueueConfig        QueueConfig        `json:"queue_config"`
	DetectionConfig    DetectionConfig    `json:"detection_config"`
	IssueTrackerConfig IssueTrackerConfig `json:"issue_tracker_config,omitempty"`
	FrontendConfig     FrontendConfig     `json:"frontend_config,omitempty"`
}

// ApplyDefaults fills in every optional value that was left unset.
func (i *InstanceConfig) ApplyDefaults() {
	d := &i.DetectionConfig
	if d.Default == (changepoint.Thresholds{}) {
		d.Default = changepoint.DefaultThresholds()
	}
	if d.SeriesLength == 0 {
		d.SeriesLength = DefaultSeriesLength
	}
	if d.Deadline == 0 {
		d.Deadline = DurationAsString(DefaultDetectDeadline)
	}
	if d.Retry.Base == 0 {
		d.Retry.Base = DurationAsString(DefaultRetryBase)
	}
	if d.Retry.Factor == 0 {
		d.Retry.Factor = DefaultRetryFactor
	}
	if d.Retry.Cap == 0 {
		d.Retry.Cap = DurationAsString(DefaultRetryCap)
	}
	if d.Retry.MaxAttempts == 0 {
		d.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if i.IssueTrackerConfig.Timeout == 0 {
		i.IssueTrackerConfig.Timeout = DurationAsString(DefaultIssueTrackerTimeout)
	}
	if i.IssueTrackerConfig.MaxRetries == 0 {
		i.IssueTrackerConfig.MaxRetries = DefaultIssueTrackerMaxRetries
	}
	if i.FrontendConfig.PageSize == 0 {
		i.FrontendConfig.PageSize = DefaultPageSize
	}
}

// FrontendFlags are the command-line flags of the frontend sub-command.
type FrontendFlags struct {
	ConfigFilename string
	Port           string
	PromPort       string
	LogDebug       bool
}

// Register the flags in the given FlagSet.
func (flags *FrontendFlags) Register(fs *pflag.FlagSet) {
	fs.StringVar(&flags.ConfigFilename, "config_filename", "./configs/local.json", "Instance config file. Must be supplied.")
	fs.StringVar(&flags.Port, "port", ":8000", "HTTP service address (e.g., ':8000')")
	fs.StringVar(&flags.PromPort, "prom_port", ":20000", "Metrics service address (e.g., ':10110')")
	fs.BoolVar(&flags.LogDebug, "log_debug", false, "Log debug level lines.")
}

// WorkerFlags are the command-line flags of the worker sub-command.
type WorkerFlags struct {
	ConfigFilename string
	PromPort       string
	HealthPort     string
	Local          bool
	NumGoroutines  int
	LogDebug       bool
}

// Register the flags in the given FlagSet.
func (flags *WorkerFlags) Register(fs *pflag.FlagSet) {
	fs.StringVar(&flags.ConfigFilename, "config_filename", "./configs/local.json", "Instance config file. Must be supplied.")
	fs.StringVar(&flags.PromPort, "prom_port", ":20000", "Metrics service address (e.g., ':10110')")
	fs.StringVar(&flags.HealthPort, "health_port", ":8001", "Health check service address.")
	fs.BoolVar(&flags.Local, "local", false, "True if running locally and not in production. Each host gets its own subscription.")
	fs.IntVar(&flags.NumGoroutines, "num_goroutines", 4, "Number of messages processed in parallel per task kind.")
	fs.BoolVar(&flags.LogDebug, "log_debug", false, "Log debug level lines.")
}

// DatabaseFlags are the command-line flags of the database sub-command.
type DatabaseFlags struct {
	ConfigFilename string
}

// Register the flags in the given FlagSet.
func (flags *DatabaseFlags) Register(fs *pflag.FlagSet) {
	fs.StringVar(&flags.ConfigFilename, "config_filename", "./configs/local.json", "Instance config file. Must be supplied.")
}
