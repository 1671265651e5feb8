// Package sql contains the SQL schema of the alert engine.
//
// The tables are described twice: as Go structs with `sql` struct tags, which
// document each column and drive schema checks, and as the Schema statement
// that creates them.
package sql

import (
	"time"

	"go.treeherder.org/infra/perf/go/types"
)

// Tables represents all SQL tables used by the alert engine.
type Tables struct {
	Repository              []RepositoryRow
	Framework               []FrameworkRow
	Push                    []PushRow
	OptionCollection        []OptionCollectionRow
	Signature               []SignatureRow
	Datum                   []DatumRow
	PerformanceAlertSummary []PerformanceAlertSummaryRow
	PerformanceAlert        []PerformanceAlertRow
	PerformanceTag          []PerformanceTagRow
	SummaryTag              []SummaryTagRow
	BugReference            []BugReferenceRow
}

// RepositoryRow is a CI branch that data is ingested for.
type RepositoryRow struct {
	ID   types.RepositoryID `sql:"id INT PRIMARY KEY DEFAULT unique_rowid()"`
	Name string             `sql:"name STRING UNIQUE NOT NULL"`
	// PerformanceAlertsEnabled is false for repositories whose data is kept
	// but never analyzed, e.g. try.
	PerformanceAlertsEnabled bool `sql:"performance_alerts_enabled BOOL NOT NULL DEFAULT true"`
}

type FrameworkRow struct {
	ID            types.FrameworkID `sql:"id INT PRIMARY KEY DEFAULT unique_rowid()"`
	Name          string            `sql:"name STRING UNIQUE NOT NULL"`
	Enabled       bool              `sql:"enabled BOOL NOT NULL DEFAULT true"`
	LowerIsBetter bool              `sql:"lower_is_better BOOL NOT NULL DEFAULT true"`
}

type PushRow struct {
	ID           types.PushID       `sql:"id INT PRIMARY KEY DEFAULT unique_rowid()"`
	RepositoryID types.RepositoryID `sql:"repository_id INT NOT NULL REFERENCES Repository (id)"`
	Revision     string             `sql:"revision STRING NOT NULL"`
	Time         time.Time          `sql:"time TIMESTAMPTZ NOT NULL"`

	byRevision struct{} `sql:"UNIQUE INDEX by_repository_revision (repository_id, revision)"`
	byTime     struct{} `sql:"INDEX by_repository_time (repository_id, time)"`
}

// OptionCollectionRow is one option of a collection. A collection is
// identified by the SHA-1 of its sorted option names.
type OptionCollectionRow struct {
	OptionCollectionHash string `sql:"option_collection_hash STRING NOT NULL"`
	Option               string `sql:"option STRING NOT NULL"`

	primaryKey struct{} `sql:"PRIMARY KEY (option_collection_hash, option)"`
}

// SignatureRow is the identity of a time series.
type SignatureRow struct {
	ID            types.SignatureID  `sql:"id INT PRIMARY KEY DEFAULT unique_rowid()"`
	RepositoryID  types.RepositoryID `sql:"repository_id INT NOT NULL REFERENCES Repository (id)"`
	FrameworkID   types.FrameworkID  `sql:"framework_id INT NOT NULL REFERENCES Framework (id)"`
	SignatureHash string             `sql:"signature_hash STRING NOT NULL"`
	// ExtraOptions is the canonical space separated form.
	ExtraOptions         string `sql:"extra_options STRING NOT NULL DEFAULT ''"`
	Test                 string `sql:"test STRING NOT NULL DEFAULT ''"`
	Suite                string `sql:"suite STRING NOT NULL"`
	Platform             string `sql:"platform STRING NOT NULL"`
	OptionCollectionHash string `sql:"option_collection_hash STRING NOT NULL"`
	// ParentSignatureID is set for subtests.
	ParentSignatureID *types.SignatureID `sql:"parent_signature_id INT REFERENCES Signature (id)"`
	HasSubtests       bool               `sql:"has_subtests BOOL NOT NULL DEFAULT false"`
	LastUpdated       time.Time          `sql:"last_updated TIMESTAMPTZ NOT NULL"`

	bySignature struct{} `sql:"UNIQUE INDEX by_signature (repository_id, framework_id, signature_hash, extra_options)"`
	byParent    struct{} `sql:"INDEX by_parent (parent_signature_id)"`
}

// DatumRow is a single measurement. Rows are never updated or deleted.
type DatumRow struct {
	SignatureID   types.SignatureID `sql:"signature_id INT NOT NULL REFERENCES Signature (id)"`
	JobID         types.JobID       `sql:"job_id INT NOT NULL"`
	PushID        types.PushID      `sql:"push_id INT NOT NULL REFERENCES Push (id)"`
	Value         float64           `sql:"value FLOAT8 NOT NULL"`
	PushTimestamp time.Time         `sql:"push_timestamp TIMESTAMPTZ NOT NULL"`

	primaryKey    struct{} `sql:"PRIMARY KEY (signature_id, job_id)"`
	bySeriesOrder struct{} `sql:"INDEX by_series_order (signature_id, push_timestamp DESC, push_id DESC, job_id DESC)"`
	byPush        struct{} `sql:"INDEX by_push (push_id, signature_id)"`
}

// PerformanceAlertSummaryRow groups the alerts of one repository and
// framework whose culprit is the same push range.
type PerformanceAlertSummaryRow struct {
	ID           types.SummaryID    `sql:"id INT PRIMARY KEY DEFAULT unique_rowid()"`
	RepositoryID types.RepositoryID `sql:"repository_id INT NOT NULL REFERENCES Repository (id)"`
	FrameworkID  types.FrameworkID  `sql:"framework_id INT NOT NULL REFERENCES Framework (id)"`
	PrevPushID   types.PushID       `sql:"prev_push_id INT NOT NULL REFERENCES Push (id)"`
	PushID       types.PushID       `sql:"push_id INT NOT NULL REFERENCES Push (id)"`
	Status       string             `sql:"status STRING NOT NULL DEFAULT 'UNTRIAGED'"`
	BugNumber    *types.BugNumber   `sql:"bug_number INT"`
	IssueTracker types.IssueTracker `sql:"issue_tracker INT NOT NULL DEFAULT 1"`
	Notes        string             `sql:"notes STRING NOT NULL DEFAULT ''"`
	Created      time.Time          `sql:"created TIMESTAMPTZ NOT NULL"`
	FirstTriaged *time.Time         `sql:"first_triaged TIMESTAMPTZ"`
	LastUpdated  time.Time          `sql:"last_updated TIMESTAMPTZ NOT NULL"`

	byPushRange struct{} `sql:"UNIQUE INDEX by_push_range (repository_id, framework_id, prev_push_id, push_id)"`
	byPush      struct{} `sql:"UNIQUE INDEX by_push (repository_id, framework_id, push_id)"`
	byCreated   struct{} `sql:"INDEX by_created (created DESC)"`
}

// PerformanceAlertRow is a change point in one series.
type PerformanceAlertRow struct {
	ID                types.AlertID     `sql:"id INT PRIMARY KEY DEFAULT unique_rowid()"`
	SummaryID         types.SummaryID   `sql:"summary_id INT NOT NULL REFERENCES PerformanceAlertSummary (id)"`
	SeriesSignatureID types.SignatureID `sql:"series_signature_id INT NOT NULL REFERENCES Signature (id)"`
	RelatedSummaryID  *types.SummaryID  `sql:"related_summary_id INT REFERENCES PerformanceAlertSummary (id)"`
	RevisedSummaryID  *types.SummaryID  `sql:"revised_summary_id INT REFERENCES PerformanceAlertSummary (id)"`
	IsRegression      bool              `sql:"is_regression BOOL NOT NULL"`
	AmountPct         float64           `sql:"amount_pct FLOAT8 NOT NULL"`
	AmountAbs         float64           `sql:"amount_abs FLOAT8 NOT NULL"`
	PrevValue         float64           `sql:"prev_value FLOAT8 NOT NULL"`
	NewValue          float64           `sql:"new_value FLOAT8 NOT NULL"`
	TValue            float64           `sql:"t_value FLOAT8 NOT NULL"`
	ManuallyCreated   bool              `sql:"manually_created BOOL NOT NULL DEFAULT false"`
	Status            string            `sql:"status STRING NOT NULL DEFAULT 'UNTRIAGED'"`
	Classifier        *string           `sql:"classifier STRING"`
	Title             *string           `sql:"title STRING"`
	Created           time.Time         `sql:"created TIMESTAMPTZ NOT NULL"`
	LastUpdated       time.Time         `sql:"last_updated TIMESTAMPTZ NOT NULL"`

	bySummarySignature struct{} `sql:"UNIQUE INDEX by_summary_signature (summary_id, series_signature_id)"`
	byRelated          struct{} `sql:"INDEX by_related (related_summary_id)"`
	bySignature        struct{} `sql:"INDEX by_signature (series_signature_id)"`
}

type PerformanceTagRow struct {
	ID   types.TagID `sql:"id INT PRIMARY KEY DEFAULT unique_rowid()"`
	Name string      `sql:"name STRING UNIQUE NOT NULL"`
}

type SummaryTagRow struct {
	SummaryID types.SummaryID `sql:"summary_id INT NOT NULL REFERENCES PerformanceAlertSummary (id)"`
	TagID     types.TagID     `sql:"tag_id INT NOT NULL REFERENCES PerformanceTag (id)"`

	primaryKey struct{} `sql:"PRIMARY KEY (summary_id, tag_id)"`
}

// BugReferenceRow is a bug number found in the notes of a summary.
type BugReferenceRow struct {
	SummaryID    types.SummaryID    `sql:"summary_id INT NOT NULL REFERENCES PerformanceAlertSummary (id)"`
	BugNumber    types.BugNumber    `sql:"bug_number INT NOT NULL"`
	IssueTracker types.IssueTracker `sql:"issue_tracker INT NOT NULL DEFAULT 1"`

	primaryKey struct{} `sql:"PRIMARY KEY (summary_id, bug_number)"`
}
