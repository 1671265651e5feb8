package sql

// Schema creates every table in Tables. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS Repository (
  id INT PRIMARY KEY DEFAULT unique_rowid(),
  name STRING UNIQUE NOT NULL,
  performance_alerts_enabled BOOL NOT NULL DEFAULT true
);
CREATE TABLE IF NOT EXISTS Framework (
  id INT PRIMARY KEY DEFAULT unique_rowid(),
  name STRING UNIQUE NOT NULL,
  enabled BOOL NOT NULL DEFAULT true,
  lower_is_better BOOL NOT NULL DEFAULT true
);
CREATE TABLE IF NOT EXISTS Push (
  id INT PRIMARY KEY DEFAULT unique_rowid(),
  repository_id INT NOT NULL REFERENCES Repository (id),
  revision STRING NOT NULL,
  time TIMESTAMPTZ NOT NULL,
  UNIQUE INDEX by_repository_revision (repository_id, revision),
  INDEX by_repository_time (repository_id, time)
);
CREATE TABLE IF NOT EXISTS OptionCollection (
  option_collection_hash STRING NOT NULL,
  option STRING NOT NULL,
  PRIMARY KEY (option_collection_hash, option)
);
CREATE TABLE IF NOT EXISTS Signature (
  id INT PRIMARY KEY DEFAULT unique_rowid(),
  repository_id INT NOT NULL REFERENCES Repository (id),
  framework_id INT NOT NULL REFERENCES Framework (id),
  signature_hash STRING NOT NULL,
  extra_options STRING NOT NULL DEFAULT '',
  test STRING NOT NULL DEFAULT '',
  suite STRING NOT NULL,
  platform STRING NOT NULL,
  option_collection_hash STRING NOT NULL,
  parent_signature_id INT REFERENCES Signature (id),
  has_subtests BOOL NOT NULL DEFAULT false,
  last_updated TIMESTAMPTZ NOT NULL,
  UNIQUE INDEX by_signature (repository_id, framework_id, signature_hash, extra_options),
  INDEX by_parent (parent_signature_id)
);
CREATE TABLE IF NOT EXISTS Datum (
  signature_id INT NOT NULL REFERENCES Signature (id),
  job_id INT NOT NULL,
  push_id INT NOT NULL REFERENCES Push (id),
  value FLOAT8 NOT NULL,
  push_timestamp TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (signature_id, job_id),
  INDEX by_series_order (signature_id, push_timestamp DESC, push_id DESC, job_id DESC),
  INDEX by_push (push_id, signature_id)
);
CREATE TABLE IF NOT EXISTS PerformanceAlertSummary (
  id INT PRIMARY KEY DEFAULT unique_rowid(),
  repository_id INT NOT NULL REFERENCES Repository (id),
  framework_id INT NOT NULL REFERENCES Framework (id),
  prev_push_id INT NOT NULL REFERENCES Push (id),
  push_id INT NOT NULL REFERENCES Push (id),
  status STRING NOT NULL DEFAULT 'UNTRIAGED',
  bug_number INT,
  issue_tracker INT NOT NULL DEFAULT 1,
  notes STRING NOT NULL DEFAULT '',
  created TIMESTAMPTZ NOT NULL,
  first_triaged TIMESTAMPTZ,
  last_updated TIMESTAMPTZ NOT NULL,
  UNIQUE INDEX by_push_range (repository_id, framework_id, prev_push_id, push_id),
  UNIQUE INDEX by_push (repository_id, framework_id, push_id),
  INDEX by_created (created DESC)
);
CREATE TABLE IF NOT EXISTS PerformanceAlert (
  id INT PRIMARY KEY DEFAULT unique_rowid(),
  summary_id INT NOT NULL REFERENCES PerformanceAlertSummary (id),
  series_signature_id INT NOT NULL REFERENCES Signature (id),
  related_summary_id INT REFERENCES PerformanceAlertSummary (id),
  revised_summary_id INT REFERENCES PerformanceAlertSummary (id),
  is_regression BOOL NOT NULL,
  amount_pct FLOAT8 NOT NULL,
  amount_abs FLOAT8 NOT NULL,
  prev_value FLOAT8 NOT NULL,
  new_value FLOAT8 NOT NULL,
  t_value FLOAT8 NOT NULL,
  manually_created BOOL NOT NULL DEFAULT false,
  status STRING NOT NULL DEFAULT 'UNTRIAGED',
  classifier STRING,
  title STRING,
  created TIMESTAMPTZ NOT NULL,
  last_updated TIMESTAMPTZ NOT NULL,
  UNIQUE INDEX by_summary_signature (summary_id, series_signature_id),
  INDEX by_related (related_summary_id),
  INDEX by_signature (series_signature_id)
);
CREATE TABLE IF NOT EXISTS PerformanceTag (
  id INT PRIMARY KEY DEFAULT unique_rowid(),
  name STRING UNIQUE NOT NULL
);
CREATE TABLE IF NOT EXISTS SummaryTag (
  summary_id INT NOT NULL REFERENCES PerformanceAlertSummary (id),
  tag_id INT NOT NULL REFERENCES PerformanceTag (id),
  PRIMARY KEY (summary_id, tag_id)
);
CREATE TABLE IF NOT EXISTS BugReference (
  summary_id INT NOT NULL REFERENCES PerformanceAlertSummary (id),
  bug_number INT NOT NULL,
  issue_tracker INT NOT NULL DEFAULT 1,
  PRIMARY KEY (summary_id, bug_number)
);
`
