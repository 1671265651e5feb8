// Package sqlalertstore implements alerts.Store on CockroachDB.
package sqlalertstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/jackc/pgx/v4"
	"go.opencensus.io/trace"
	"go.treeherder.org/infra/go/metrics2"
	"go.treeherder.org/infra/go/now"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/go/sql/pool"
	"go.treeherder.org/infra/go/sql/sqlutil"
	"go.treeherder.org/infra/perf/go/alerts"
	"go.treeherder.org/infra/perf/go/bug"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/types"
)

const alertColumns = `id, summary_id, series_signature_id, related_summary_id, revised_summary_id, is_regression,
	amount_pct, amount_abs, prev_value, new_value, t_value, manually_created, status, classifier, title, created,
	last_updated`

const summaryColumns = `id, repository_id, framework_id, prev_push_id, push_id, status, bug_number, issue_tracker,
	notes, created, first_triaged, last_updated`

// statementFormat is an SQL statement identifier.
type statementFormat int

const (
	insertSummary statementFormat = iota
	readSummaryForPush
	movePrevPushEarlier
	readSummary
	readSummaryForUpdate
	readAlert
	readAlertForUpdate
	readAlertsOfSummaries
	updateAlert
	stampFirstTriaged
	updateSummaryStatus
	updateBugNumber
	updateBugNumberIfNull
	insertBugReference
	readBugReferences
	updateNotes
	upsertTag
	listTags
	deleteSummaryTags
	insertSummaryTag
	readSummaryTags
	readSignatureOwner
	readPolarity
	insertManualAlert
	latestAlertPushTime
)

// statementContext provides a struct to expand sql statement templates.
type statementContext struct {
	AlertColumns   string
	SummaryColumns string
}

var statementFormats = map[statementFormat]string{
	insertSummary: `
		INSERT INTO PerformanceAlertSummary
			(repository_id, framework_id, prev_push_id, push_id, status, issue_tracker, created, last_updated)
		VALUES
			($1, $2, $3, $4, 'UNTRIAGED', 1, $5, $5)
		ON CONFLICT (repository_id, framework_id, push_id) DO NOTHING
		RETURNING id`,
	readSummaryForPush: `
		SELECT id
		FROM PerformanceAlertSummary
		WHERE repository_id=$1 AND framework_id=$2 AND push_id=$3`,
	movePrevPushEarlier: `
		UPDATE PerformanceAlertSummary AS s
		SET prev_push_id=$2, last_updated=$3
		WHERE
			s.id=$1
			AND (SELECT time FROM Push WHERE id=$2) < (SELECT time FROM Push WHERE id=s.prev_push_id)`,
	readSummary: `
		SELECT {{ .SummaryColumns }}
		FROM PerformanceAlertSummary
		WHERE id=$1`,
	readSummaryForUpdate: `
		SELECT {{ .SummaryColumns }}
		FROM PerformanceAlertSummary
		WHERE id=$1
		FOR UPDATE`,
	readAlert: `
		SELECT {{ .AlertColumns }}
		FROM PerformanceAlert
		WHERE id=$1`,
	readAlertForUpdate: `
		SELECT {{ .AlertColumns }}
		FROM PerformanceAlert
		WHERE id=$1
		FOR UPDATE`,
	readAlertsOfSummaries: `
		SELECT {{ .AlertColumns }}
		FROM PerformanceAlert
		WHERE summary_id = ANY($1) OR related_summary_id = ANY($1)
		ORDER BY id`,
	updateAlert: `
		UPDATE PerformanceAlert
		SET status=$2, related_summary_id=$3, revised_summary_id=$4, classifier=$5, last_updated=$6
		WHERE id=$1`,
	stampFirstTriaged: `
		UPDATE PerformanceAlertSummary
		SET
			first_triaged=COALESCE(first_triaged, $2),
			status=CASE WHEN status='UNTRIAGED' THEN 'INVESTIGATING' ELSE status END,
			last_updated=$2
		WHERE id=$1`,
	updateSummaryStatus: `
		UPDATE PerformanceAlertSummary
		SET
			status=$2,
			first_triaged=CASE WHEN $2 = 'UNTRIAGED' THEN first_triaged ELSE COALESCE(first_triaged, $3) END,
			last_updated=$3
		WHERE id=$1`,
	updateBugNumber: `
		UPDATE PerformanceAlertSummary
		SET bug_number=$2, issue_tracker=$3, last_updated=$4
		WHERE id=$1`,
	updateBugNumberIfNull: `
		UPDATE PerformanceAlertSummary
		SET bug_number=$2, issue_tracker=$3, last_updated=$4
		WHERE id=$1 AND bug_number IS NULL`,
	insertBugReference: `
		INSERT INTO BugReference (summary_id, bug_number, issue_tracker)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
	readBugReferences: `
		SELECT summary_id, bug_number
		FROM BugReference
		WHERE summary_id = ANY($1)
		ORDER BY summary_id, bug_number`,
	updateNotes: `
		UPDATE PerformanceAlertSummary
		SET notes=$2, last_updated=$3
		WHERE id=$1`,
	upsertTag: `
		INSERT INTO PerformanceTag (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name=EXCLUDED.name
		RETURNING id`,
	listTags: `
		SELECT id, name
		FROM PerformanceTag
		ORDER BY name`,
	deleteSummaryTags: `DELETE FROM SummaryTag WHERE summary_id=$1`,
	insertSummaryTag: `
		INSERT INTO SummaryTag (summary_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
	readSummaryTags: `
		SELECT st.summary_id, t.name
		FROM SummaryTag AS st JOIN PerformanceTag AS t ON st.tag_id = t.id
		WHERE st.summary_id = ANY($1)
		ORDER BY st.summary_id, t.name`,
	readSignatureOwner: `
		SELECT repository_id, framework_id
		FROM Signature
		WHERE id=$1`,
	readPolarity: `SELECT lower_is_better FROM Framework WHERE id=$1`,
	insertManualAlert: `
		INSERT INTO PerformanceAlert
			(summary_id, series_signature_id, is_regression, amount_pct, amount_abs, prev_value, new_value,
			t_value, manually_created, status, title, created, last_updated)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, 0, true, 'UNTRIAGED', $8, $9, $9)
		ON CONFLICT (summary_id, series_signature_id) DO NOTHING
		RETURNING id`,
	latestAlertPushTime: `
		SELECT MAX(p.time)
		FROM
			PerformanceAlert AS a
			JOIN PerformanceAlertSummary AS s ON a.summary_id = s.id
			JOIN Push AS p ON s.push_id = p.id
		WHERE a.series_signature_id=$1`,
}

// SQLAlertStore implements alerts.Store.
type SQLAlertStore struct {
	db         pool.Pool
	statements map[statementFormat]string

	summariesCreated metrics2.Counter
	alertsCreated    metrics2.Counter
	conflicts        metrics2.Counter
}

// New returns a new SQLAlertStore.
func New(db pool.Pool) (*SQLAlertStore, error) {
	templates := map[statementFormat]string{}
	context := statementContext{
		AlertColumns:   alertColumns,
		SummaryColumns: summaryColumns,
	}
	for key, tmpl := range statementFormats {
		t, err := template.New("").Parse(tmpl)
		if err != nil {
			return nil, skerr.Wrapf(err, "Error parsing template %v, %q", key, tmpl)
		}
		var b bytes.Buffer
		if err := t.Execute(&b, context); err != nil {
			return nil, skerr.Wrapf(err, "Failed to execute template %v", key)
		}
		templates[key] = b.String()
	}
	return &SQLAlertStore{
		db:               db,
		statements:       templates,
		summariesCreated: metrics2.GetCounter("perf_alert_summaries_created"),
		alertsCreated:    metrics2.GetCounter("perf_alerts_created"),
		conflicts:        metrics2.GetCounter("perf_alert_summary_conflicts"),
	}, nil
}

func txOptions() pgx.TxOptions {
	return pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
}

func toSummaryID(p *int64) *types.SummaryID {
	if p == nil {
		return nil
	}
	id := types.SummaryID(*p)
	return &id
}

func fromSummaryID(p *types.SummaryID) *int64 {
	if p == nil {
		return nil
	}
	id := int64(*p)
	return &id
}

func scanAlert(row pgx.Row) (*alerts.Alert, error) {
	var a alerts.Alert
	var related, revised *int64
	var classifier, title *string
	var status string
	if err := row.Scan(&a.ID, &a.SummaryID, &a.SignatureID, &related, &revised, &a.IsRegression, &a.AmountPct,
		&a.AmountAbs, &a.PrevValue, &a.NewValue, &a.TValue, &a.ManuallyCreated, &status, &classifier, &title,
		&a.Created, &a.LastUpdated); err != nil {
		return nil, err
	}
	a.RelatedSummaryID = toSummaryID(related)
	a.RevisedSummaryID = toSummaryID(revised)
	a.Status = alerts.AlertStatus(status)
	if classifier != nil {
		a.Classifier = *classifier
	}
	if title != nil {
		a.Title = *title
	}
	a.Created = a.Created.UTC()
	a.LastUpdated = a.LastUpdated.UTC()
	return &a, nil
}

func scanSummary(row pgx.Row) (*alerts.Summary, error) {
	var s alerts.Summary
	var bugNumber *int64
	var status string
	if err := row.Scan(&s.ID, &s.RepositoryID, &s.FrameworkID, &s.PrevPushID, &s.PushID, &status, &bugNumber,
		&s.IssueTracker, &s.Notes, &s.Created, &s.FirstTriaged, &s.LastUpdated); err != nil {
		return nil, err
	}
	s.Status = alerts.SummaryStatus(status)
	if bugNumber != nil {
		b := types.BugNumber(*bugNumber)
		s.BugNumber = &b
	}
	s.Created = s.Created.UTC()
	s.LastUpdated = s.LastUpdated.UTC()
	if s.FirstTriaged != nil {
		ft := s.FirstTriaged.UTC()
		s.FirstTriaged = &ft
	}
	return &s, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// UpsertSummaryWithAlerts implements alerts.Store.
func (s *SQLAlertStore) UpsertSummaryWithAlerts(ctx context.Context, b alerts.Batch) (alerts.UpsertResult, error) {
	ctx, span := trace.StartSpan(ctx, "sqlalertstore.UpsertSummaryWithAlerts")
	defer span.End()

	if len(b.Alerts) == 0 {
		return alerts.UpsertResult{}, skerr.Wrapf(perferrors.ErrValidation, "batch for push %d has no alerts", b.PushID)
	}
	if b.PrevPushID == b.PushID {
		return alerts.UpsertResult{}, skerr.Wrapf(perferrors.ErrValidation, "previous push must differ from push %d", b.PushID)
	}
	for _, a := range b.Alerts {
		if !finite(a.AmountAbs, a.AmountPct, a.PrevValue, a.NewValue, a.TValue) {
			return alerts.UpsertResult{}, skerr.Wrapf(perferrors.ErrValidation, "alert for signature %d has non-finite values", a.SignatureID)
		}
	}
	ts := now.Now(ctx)

	var ret alerts.UpsertResult
	var err error
	// A unique violation means a concurrent writer created the summary
	// between our statements, the second attempt reads it.
	for attempt := 0; attempt < 2; attempt++ {
		ret, err = s.upsertOnce(ctx, b, ts)
		if err == nil || !sqlutil.IsUniqueViolation(err) {
			break
		}
		s.conflicts.Inc(1)
		sklog.Warningf("Unique violation writing summary for push %d, re-reading: %s", b.PushID, err)
	}
	if err != nil {
		return alerts.UpsertResult{}, skerr.Wrapf(err, "upserting summary for repository %d framework %d push %d", b.RepositoryID, b.FrameworkID, b.PushID)
	}
	if ret.SummaryCreated {
		s.summariesCreated.Inc(1)
	}
	s.alertsCreated.Inc(int64(ret.AlertsCreated))
	return ret, nil
}

func (s *SQLAlertStore) upsertOnce(ctx context.Context, b alerts.Batch, ts time.Time) (alerts.UpsertResult, error) {
	var ret alerts.UpsertResult
	err := crdbpgx.ExecuteTx(ctx, s.db, txOptions(), func(tx pgx.Tx) error {
		ret = alerts.UpsertResult{}
		err := tx.QueryRow(ctx, s.statements[insertSummary], b.RepositoryID, b.FrameworkID, b.PrevPushID, b.PushID, ts).Scan(&ret.SummaryID)
		if err == nil {
			ret.SummaryCreated = true
		} else if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.QueryRow(ctx, s.statements[readSummaryForPush], b.RepositoryID, b.FrameworkID, b.PushID).Scan(&ret.SummaryID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, s.statements[movePrevPushEarlier], ret.SummaryID, b.PrevPushID, ts); err != nil {
				return err
			}
		} else {
			return err // Don't wrap - crdbpgx might retry
		}

		const valuesPerRow = 10
		args := make([]interface{}, 0, valuesPerRow*len(b.Alerts))
		for _, a := range b.Alerts {
			args = append(args, ret.SummaryID, a.SignatureID, a.IsRegression, a.AmountPct, a.AmountAbs, a.PrevValue, a.NewValue, a.TValue, ts, ts)
		}
		rows, err := tx.Query(ctx, `
			INSERT INTO PerformanceAlert
				(summary_id, series_signature_id, is_regression, amount_pct, amount_abs, prev_value, new_value, t_value, created, last_updated)
			VALUES `+sqlutil.ValuesPlaceholders(valuesPerRow, len(b.Alerts))+`
			ON CONFLICT (summary_id, series_signature_id) DO NOTHING
			RETURNING id`, args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			ret.AlertsCreated++
		}
		rows.Close()
		return rows.Err()
	})
	return ret, err
}

// GetSummary implements alerts.Store.
func (s *SQLAlertStore) GetSummary(ctx context.Context, id types.SummaryID) (*alerts.Summary, error) {
	ctx, span := trace.StartSpan(ctx, "sqlalertstore.GetSummary")
	defer span.End()

	summary, err := scanSummary(s.db.QueryRow(ctx, s.statements[readSummary], id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, skerr.Wrapf(perferrors.ErrNotFound, "summary %d", id)
	}
	if err != nil {
		return nil, skerr.Wrapf(err, "reading summary %d", id)
	}
	if err := s.fillDetails(ctx, []*alerts.Summary{summary}); err != nil {
		return nil, err
	}
	return summary, nil
}

// fillDetails loads the alerts, related alerts, tags and bugs of summaries.
func (s *SQLAlertStore) fillDetails(ctx context.Context, summaries []*alerts.Summary) error {
	if len(summaries) == 0 {
		return nil
	}
	byID := map[types.SummaryID]*alerts.Summary{}
	ids := make([]int64, 0, len(summaries))
	for _, summary := range summaries {
		summary.Alerts = []*alerts.Alert{}
		summary.RelatedAlerts = []*alerts.Alert{}
		summary.Tags = []string{}
		summary.Bugs = []types.BugNumber{}
		byID[summary.ID] = summary
		ids = append(ids, int64(summary.ID))
	}

	rows, err := s.db.Query(ctx, s.statements[readAlertsOfSummaries], ids)
	if err != nil {
		return skerr.Wrapf(err, "reading alerts")
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return skerr.Wrap(err)
		}
		if owner, ok := byID[a.SummaryID]; ok {
			owner.Alerts = append(owner.Alerts, a)
		}
		if a.RelatedSummaryID != nil {
			if related, ok := byID[*a.RelatedSummaryID]; ok {
				related.RelatedAlerts = append(related.RelatedAlerts, a)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return skerr.Wrap(err)
	}

	tagRows, err := s.db.Query(ctx, s.statements[readSummaryTags], ids)
	if err != nil {
		return skerr.Wrapf(err, "reading tags")
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var id types.SummaryID
		var name string
		if err := tagRows.Scan(&id, &name); err != nil {
			return skerr.Wrap(err)
		}
		byID[id].Tags = append(byID[id].Tags, name)
	}
	if err := tagRows.Err(); err != nil {
		return skerr.Wrap(err)
	}

	bugRows, err := s.db.Query(ctx, s.statements[readBugReferences], ids)
	if err != nil {
		return skerr.Wrapf(err, "reading bug references")
	}
	defer bugRows.Close()
	for bugRows.Next() {
		var id types.SummaryID
		var b types.BugNumber
		if err := bugRows.Scan(&id, &b); err != nil {
			return skerr.Wrap(err)
		}
		byID[id].Bugs = append(byID[id].Bugs, b)
	}
	return skerr.Wrap(bugRows.Err())
}

// ListSummaries implements alerts.Store.
func (s *SQLAlertStore) ListSummaries(ctx context.Context, f alerts.Filter) ([]*alerts.Summary, int, error) {
	ctx, span := trace.StartSpan(ctx, "sqlalertstore.ListSummaries")
	defer span.End()

	conditions := []string{"true"}
	args := []interface{}{}
	add := func(condition string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}
	if f.RepositoryID != 0 {
		add("repository_id=$%d", f.RepositoryID)
	}
	if f.FrameworkID != 0 {
		add("framework_id=$%d", f.FrameworkID)
	}
	if f.Status != "" {
		if !f.Status.IsValid() {
			return nil, 0, skerr.Wrapf(perferrors.ErrValidation, "unknown summary status %q", f.Status)
		}
		add("status=$%d", string(f.Status))
	}
	if !f.Since.IsZero() {
		add("created >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created <= $%d", f.Until)
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM PerformanceAlertSummary WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, skerr.Wrapf(err, "counting summaries")
	}

	query := "SELECT " + summaryColumns + " FROM PerformanceAlertSummary WHERE " + where + " ORDER BY created DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, skerr.Wrapf(err, "listing summaries")
	}
	defer rows.Close()
	ret := []*alerts.Summary{}
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, 0, skerr.Wrap(err)
		}
		ret = append(ret, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, skerr.Wrap(err)
	}
	if err := s.fillDetails(ctx, ret); err != nil {
		return nil, 0, err
	}
	return ret, total, nil
}

// GetAlert implements alerts.Store.
func (s *SQLAlertStore) GetAlert(ctx context.Context, id types.AlertID) (*alerts.Alert, error) {
	a, err := scanAlert(s.db.QueryRow(ctx, s.statements[readAlert], id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, skerr.Wrapf(perferrors.ErrNotFound, "alert %d", id)
	}
	return a, skerr.Wrapf(err, "reading alert %d", id)
}

// checkRehomeTarget returns an error unless target is an existing summary,
// other than the alert's own, in the same repository.
func (s *SQLAlertStore) checkRehomeTarget(ctx context.Context, tx pgx.Tx, a *alerts.Alert, target types.SummaryID) error {
	if target == a.SummaryID {
		return skerr.Wrapf(perferrors.ErrValidation, "alert %d can't be re-homed to its own summary", a.ID)
	}
	owner, err := scanSummary(tx.QueryRow(ctx, s.statements[readSummary], a.SummaryID))
	if err != nil {
		return err
	}
	related, err := scanSummary(tx.QueryRow(ctx, s.statements[readSummary], target))
	if errors.Is(err, pgx.ErrNoRows) {
		return skerr.Wrapf(perferrors.ErrNotFound, "summary %d", target)
	}
	if err != nil {
		return err
	}
	if related.RepositoryID != owner.RepositoryID {
		return skerr.Wrapf(perferrors.ErrValidation, "summary %d is in a different repository than summary %d", target, a.SummaryID)
	}
	return nil
}

// SetAlertStatus implements alerts.Store.
func (s *SQLAlertStore) SetAlertStatus(ctx context.Context, id types.AlertID, u alerts.AlertUpdate) (*alerts.Alert, error) {
	ctx, span := trace.StartSpan(ctx, "sqlalertstore.SetAlertStatus")
	defer span.End()
	ts := now.Now(ctx)

	err := crdbpgx.ExecuteTx(ctx, s.db, txOptions(), func(tx pgx.Tx) error {
		a, err := scanAlert(tx.QueryRow(ctx, s.statements[readAlertForUpdate], id))
		if errors.Is(err, pgx.ErrNoRows) {
			return skerr.Wrapf(perferrors.ErrNotFound, "alert %d", id)
		}
		if err != nil {
			return err // Don't wrap - crdbpgx might retry
		}
		if err := alerts.ValidateAlertTransition(a.Status, u.Status); err != nil {
			return err
		}

		related, revised := a.RelatedSummaryID, a.RevisedSummaryID
		switch {
		case u.Status == alerts.AlertReassigned:
			if u.RelatedSummaryID == nil {
				return skerr.Wrapf(perferrors.ErrValidation, "reassigning alert %d requires a related summary", id)
			}
			if a.Status == alerts.AlertReassigned && a.RelatedSummaryID != nil && *a.RelatedSummaryID != *u.RelatedSummaryID {
				return skerr.Wrapf(perferrors.ErrStateTransitionRejected, "alert %d is already reassigned to summary %d, undo first", id, *a.RelatedSummaryID)
			}
			if err := s.checkRehomeTarget(ctx, tx, a, *u.RelatedSummaryID); err != nil {
				return err
			}
			related = u.RelatedSummaryID
		case u.Status == alerts.AlertDownstream:
			if u.RelatedSummaryID != nil {
				if err := s.checkRehomeTarget(ctx, tx, a, *u.RelatedSummaryID); err != nil {
					return err
				}
				related = u.RelatedSummaryID
			}
		case u.Status == alerts.AlertUntriaged && a.Status == alerts.AlertReassigned:
			// Undo, only the most recent re-home is remembered.
			revised, related = a.RelatedSummaryID, nil
		}

		classifier := a.Classifier
		if u.Classifier != "" {
			classifier = u.Classifier
		}
		changed := a.Status != u.Status || classifier != a.Classifier ||
			!sameSummaryID(related, a.RelatedSummaryID) || !sameSummaryID(revised, a.RevisedSummaryID)
		if !changed {
			return nil
		}
		var classifierArg *string
		if classifier != "" {
			classifierArg = &classifier
		}
		if _, err := tx.Exec(ctx, s.statements[updateAlert], id, string(u.Status), fromSummaryID(related), fromSummaryID(revised), classifierArg, ts); err != nil {
			return err
		}
		if a.Status == alerts.AlertUntriaged && u.Status != alerts.AlertUntriaged {
			if _, err := tx.Exec(ctx, s.statements[stampFirstTriaged], a.SummaryID, ts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "setting status of alert %d to %s", id, u.Status)
	}
	return s.GetAlert(ctx, id)
}

func sameSummaryID(a, b *types.SummaryID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// setSummaryStatus moves the summary to status inside tx.
func (s *SQLAlertStore) setSummaryStatus(ctx context.Context, tx pgx.Tx, id types.SummaryID, status alerts.SummaryStatus, ts time.Time) error {
	summary, err := scanSummary(tx.QueryRow(ctx, s.statements[readSummaryForUpdate], id))
	if errors.Is(err, pgx.ErrNoRows) {
		return skerr.Wrapf(perferrors.ErrNotFound, "summary %d", id)
	}
	if err != nil {
		return err // Don't wrap - crdbpgx might retry
	}
	if err := alerts.ValidateSummaryTransition(summary.Status, status); err != nil {
		return err
	}
	if summary.Status == status {
		return nil
	}
	_, err = tx.Exec(ctx, s.statements[updateSummaryStatus], id, string(status), ts)
	return err
}

// SetSummaryStatus implements alerts.Store.
func (s *SQLAlertStore) SetSummaryStatus(ctx context.Context, id types.SummaryID, status alerts.SummaryStatus) error {
	ctx, span := trace.StartSpan(ctx, "sqlalertstore.SetSummaryStatus")
	defer span.End()
	ts := now.Now(ctx)

	err := crdbpgx.ExecuteTx(ctx, s.db, txOptions(), func(tx pgx.Tx) error {
		return s.setSummaryStatus(ctx, tx, id, status, ts)
	})
	return skerr.Wrapf(err, "setting status of summary %d to %s", id, status)
}

// setBugNumber sets, or with nil clears, the bug of the summary inside tx.
func (s *SQLAlertStore) setBugNumber(ctx context.Context, tx pgx.Tx, id types.SummaryID, b *types.BugNumber, tracker types.IssueTracker, ts time.Time) error {
	var bugArg *int64
	if b != nil {
		n := int64(*b)
		bugArg = &n
	}
	tag, err := tx.Exec(ctx, s.statements[updateBugNumber], id, bugArg, tracker, ts)
	if err != nil {
		return err // Don't wrap - crdbpgx might retry
	}
	if tag.RowsAffected() == 0 {
		return skerr.Wrapf(perferrors.ErrNotFound, "summary %d", id)
	}
	if b == nil {
		return nil
	}
	_, err = tx.Exec(ctx, s.statements[insertBugReference], id, *b, tracker)
	return err
}

// SetBugNumber implements alerts.Store.
func (s *SQLAlertStore) SetBugNumber(ctx context.Context, id types.SummaryID, b *types.BugNumber, tracker types.IssueTracker) error {
	if b != nil && !b.IsValid() {
		return skerr.Wrapf(perferrors.ErrValidation, "bug number must be positive, got %d", *b)
	}
	if tracker == 0 {
		tracker = types.Bugzilla
	}
	ts := now.Now(ctx)
	err := crdbpgx.ExecuteTx(ctx, s.db, txOptions(), func(tx pgx.Tx) error {
		return s.setBugNumber(ctx, tx, id, b, tracker, ts)
	})
	return skerr.Wrapf(err, "setting bug of summary %d", id)
}

// linkBugs records bugs for a summary that is known to exist.
func (s *SQLAlertStore) linkBugs(ctx context.Context, tx pgx.Tx, id types.SummaryID, bugs []types.BugNumber, tracker types.IssueTracker, ts time.Time) error {
	for _, b := range bugs {
		if !b.IsValid() {
			return skerr.Wrapf(perferrors.ErrValidation, "bug number must be positive, got %d", b)
		}
		if _, err := tx.Exec(ctx, s.statements[insertBugReference], id, b, tracker); err != nil {
			return err
		}
	}
	if len(bugs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, s.statements[updateBugNumberIfNull], id, bugs[0], tracker, ts)
	return err
}

func (s *SQLAlertStore) requireSummary(ctx context.Context, tx pgx.Tx, id types.SummaryID) error {
	_, err := scanSummary(tx.QueryRow(ctx, s.statements[readSummaryForUpdate], id))
	if errors.Is(err, pgx.ErrNoRows) {
		return skerr.Wrapf(perferrors.ErrNotFound, "summary %d", id)
	}
	return err
}

// LinkBugs implements alerts.Store.
func (s *SQLAlertStore) LinkBugs(ctx context.Context, id types.SummaryID, bugs []types.BugNumber, tracker types.IssueTracker) error {
	if tracker == 0 {
		tracker = types.Bugzilla
	}
	ts := now.Now(ctx)
	err := crdbpgx.ExecuteTx(ctx, s.db, txOptions(), func(tx pgx.Tx) error {
		if err := s.requireSummary(ctx, tx, id); err != nil {
			return err // Don't wrap - crdbpgx might retry
		}
		return s.linkBugs(ctx, tx, id, bugs, tracker, ts)
	})
	return skerr.Wrapf(err, "linking bugs to summary %d", id)
}

// setNotes replaces the notes of the summary and links the bugs they
// mention, inside tx.
func (s *SQLAlertStore) setNotes(ctx context.Context, tx pgx.Tx, id types.SummaryID, notes string, tracker types.IssueTracker, ts time.Time) error {
	tag, err := tx.Exec(ctx, s.statements[updateNotes], id, notes, ts)
	if err != nil {
		return err // Don't wrap - crdbpgx might retry
	}
	if tag.RowsAffected() == 0 {
		return skerr.Wrapf(perferrors.ErrNotFound, "summary %d", id)
	}
	return s.linkBugs(ctx, tx, id, bug.FromComments(notes), tracker, ts)
}

// SetNotes implements alerts.Store.
func (s *SQLAlertStore) SetNotes(ctx context.Context, id types.SummaryID, notes string, tracker types.IssueTracker) error {
	if tracker == 0 {
		tracker = types.Bugzilla
	}
	ts := now.Now(ctx)
	err := crdbpgx.ExecuteTx(ctx, s.db, txOptions(), func(tx pgx.Tx) error {
		return s.setNotes(ctx, tx, id, notes, tracker, ts)
	})
	return skerr.Wrapf(err, "setting notes of summary %d", id)
}

// normalizeTags trims the names and drops empty and repeated ones.
func normalizeTags(names []string) []string {
	seen := map[string]bool{}
	ret := []string{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		ret = append(ret, name)
	}
	return ret
}

// setTags replaces the tags of the summary inside tx. names must already be
// normalized.
func (s *SQLAlertStore) setTags(ctx context.Context, tx pgx.Tx, id types.SummaryID, names []string) error {
	if err := s.requireSummary(ctx, tx, id); err != nil {
		return err // Don't wrap - crdbpgx might retry
	}
	if _, err := tx.Exec(ctx, s.statements[deleteSummaryTags], id); err != nil {
		return err
	}
	for _, name := range names {
		var tagID types.TagID
		if err := tx.QueryRow(ctx, s.statements[upsertTag], name).Scan(&tagID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, s.statements[insertSummaryTag], id, tagID); err != nil {
			return err
		}
	}
	return nil
}

// SetTags implements alerts.Store.
func (s *SQLAlertStore) SetTags(ctx context.Context, id types.SummaryID, names []string) error {
	names = normalizeTags(names)
	err := crdbpgx.ExecuteTx(ctx, s.db, txOptions(), func(tx pgx.Tx) error {
		return s.setTags(ctx, tx, id, names)
	})
	return skerr.Wrapf(err, "setting tags of summary %d", id)
}

// UpdateSummary implements alerts.Store. Nothing is changed unless every
// field can be applied.
func (s *SQLAlertStore) UpdateSummary(ctx context.Context, id types.SummaryID, u alerts.SummaryUpdate) error {
	ctx, span := trace.StartSpan(ctx, "sqlalertstore.UpdateSummary")
	defer span.End()

	if err := u.Validate(); err != nil {
		return skerr.Wrap(err)
	}
	tracker := u.Tracker
	if tracker == 0 {
		tracker = types.Bugzilla
	}
	var tags []string
	if u.Tags != nil {
		tags = normalizeTags(*u.Tags)
	}
	ts := now.Now(ctx)

	err := crdbpgx.ExecuteTx(ctx, s.db, txOptions(), func(tx pgx.Tx) error {
		if err := s.requireSummary(ctx, tx, id); err != nil {
			return err // Don't wrap - crdbpgx might retry
		}
		if u.Status != nil {
			if err := s.setSummaryStatus(ctx, tx, id, *u.Status, ts); err != nil {
				return err
			}
		}
		if u.BugNumber != nil || u.ClearBugNumber {
			if err := s.setBugNumber(ctx, tx, id, u.BugNumber, tracker, ts); err != nil {
				return err
			}
		}
		if u.Notes != nil {
			if err := s.setNotes(ctx, tx, id, *u.Notes, tracker, ts); err != nil {
				return err
			}
		}
		if u.Tags != nil {
			return s.setTags(ctx, tx, id, tags)
		}
		return nil
	})
	return skerr.Wrapf(err, "updating summary %d", id)
}

// ListTags implements alerts.Store.
func (s *SQLAlertStore) ListTags(ctx context.Context) ([]alerts.Tag, error) {
	rows, err := s.db.Query(ctx, s.statements[listTags])
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer rows.Close()
	ret := []alerts.Tag{}
	for rows.Next() {
		var t alerts.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, skerr.Wrap(err)
		}
		ret = append(ret, t)
	}
	return ret, skerr.Wrap(rows.Err())
}

// CreateTag implements alerts.Store.
func (s *SQLAlertStore) CreateTag(ctx context.Context, name string) (alerts.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return alerts.Tag{}, skerr.Wrapf(perferrors.ErrValidation, "tag name must not be empty")
	}
	t := alerts.Tag{Name: name}
	if err := s.db.QueryRow(ctx, s.statements[upsertTag], name).Scan(&t.ID); err != nil {
		return alerts.Tag{}, skerr.Wrapf(err, "creating tag %q", name)
	}
	return t, nil
}

// CreateManualAlert implements alerts.Store.
func (s *SQLAlertStore) CreateManualAlert(ctx context.Context, m alerts.ManualAlert) (*alerts.Alert, error) {
	ctx, span := trace.StartSpan(ctx, "sqlalertstore.CreateManualAlert")
	defer span.End()

	if !finite(m.PrevValue, m.NewValue) {
		return nil, skerr.Wrapf(perferrors.ErrValidation, "values must be finite")
	}
	ts := now.Now(ctx)
	var id types.AlertID
	err := crdbpgx.ExecuteTx(ctx, s.db, txOptions(), func(tx pgx.Tx) error {
		summary, err := scanSummary(tx.QueryRow(ctx, s.statements[readSummary], m.SummaryID))
		if errors.Is(err, pgx.ErrNoRows) {
			return skerr.Wrapf(perferrors.ErrNotFound, "summary %d", m.SummaryID)
		}
		if err != nil {
			return err // Don't wrap - crdbpgx might retry
		}
		var repoID types.RepositoryID
		var fwID types.FrameworkID
		err = tx.QueryRow(ctx, s.statements[readSignatureOwner], m.SignatureID).Scan(&repoID, &fwID)
		if errors.Is(err, pgx.ErrNoRows) {
			return skerr.Wrapf(perferrors.ErrNotFound, "signature %d", m.SignatureID)
		}
		if err != nil {
			return err
		}
		if repoID != summary.RepositoryID || fwID != summary.FrameworkID {
			return skerr.Wrapf(perferrors.ErrValidation, "signature %d is not in the repository and framework of summary %d", m.SignatureID, m.SummaryID)
		}
		var lowerIsBetter bool
		if err := tx.QueryRow(ctx, s.statements[readPolarity], fwID).Scan(&lowerIsBetter); err != nil {
			return err
		}
		abs, pct := alerts.Amounts(m.PrevValue, m.NewValue)
		var title *string
		if m.Title != "" {
			title = &m.Title
		}
		err = tx.QueryRow(ctx, s.statements[insertManualAlert], m.SummaryID, m.SignatureID,
			alerts.IsRegression(m.PrevValue, m.NewValue, lowerIsBetter), pct, abs, m.PrevValue, m.NewValue, title, ts).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return skerr.Wrapf(perferrors.ErrConflict, "summary %d already has an alert for signature %d", m.SummaryID, m.SignatureID)
		}
		return err
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "creating manual alert")
	}
	s.alertsCreated.Inc(1)
	return s.GetAlert(ctx, id)
}

// LatestAlertPushTime implements alerts.Store.
func (s *SQLAlertStore) LatestAlertPushTime(ctx context.Context, signatureID types.SignatureID) (time.Time, bool, error) {
	var ts *time.Time
	if err := s.db.QueryRow(ctx, s.statements[latestAlertPushTime], signatureID).Scan(&ts); err != nil {
		return time.Time{}, false, skerr.Wrapf(err, "reading latest alert of signature %d", signatureID)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}

// Confirm SQLAlertStore implements alerts.Store.
var _ alerts.Store = (*SQLAlertStore)(nil)
