// Package sqlpushstore implements push.Store on CockroachDB.
package sqlpushstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sql/pool"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/push"
	"go.treeherder.org/infra/perf/go/types"
)

// statement is an SQL statement identifier.
type statement int

const (
	get statement = iota
	getByRevision
	insert
)

var statements = map[statement]string{
	get: `
		SELECT id, repository_id, revision, time
		FROM Push
		WHERE id=$1`,
	getByRevision: `
		SELECT id, repository_id, revision, time
		FROM Push
		WHERE repository_id=$1 AND revision=$2`,
	insert: `
		INSERT INTO Push (repository_id, revision, time)
		VALUES ($1, $2, $3)
		ON CONFLICT (repository_id, revision) DO NOTHING
		RETURNING id`,
}

// PushStore implements push.Store.
type PushStore struct {
	db pool.Pool
}

// New returns a new PushStore.
func New(db pool.Pool) *PushStore {
	return &PushStore{db: db}
}

func scan(row pgx.Row) (*types.Push, error) {
	var p types.Push
	if err := row.Scan(&p.ID, &p.RepositoryID, &p.Revision, &p.Time); err != nil {
		return nil, err
	}
	p.Time = p.Time.UTC()
	return &p, nil
}

// Get implements push.Store.
func (s *PushStore) Get(ctx context.Context, id types.PushID) (*types.Push, error) {
	p, err := scan(s.db.QueryRow(ctx, statements[get], id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, skerr.Wrapf(perferrors.ErrNotFound, "push %d", id)
	}
	return p, skerr.Wrapf(err, "reading push %d", id)
}

// GetByRevision implements push.Store.
func (s *PushStore) GetByRevision(ctx context.Context, repositoryID types.RepositoryID, revision string) (*types.Push, error) {
	p, err := scan(s.db.QueryRow(ctx, statements[getByRevision], repositoryID, revision))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, skerr.Wrapf(perferrors.ErrNotFound, "push %q in repository %d", revision, repositoryID)
	}
	return p, skerr.Wrapf(err, "reading push %q", revision)
}

// Put implements push.Store.
func (s *PushStore) Put(ctx context.Context, repositoryID types.RepositoryID, revision string, ts time.Time) (types.PushID, error) {
	if revision == "" {
		return types.BadPushID, skerr.Wrapf(perferrors.ErrValidation, "push revision must not be empty")
	}
	var id types.PushID
	err := s.db.QueryRow(ctx, statements[insert], repositoryID, revision, ts).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := s.GetByRevision(ctx, repositoryID, revision)
		if err != nil {
			return types.BadPushID, err
		}
		return existing.ID, nil
	}
	if err != nil {
		return types.BadPushID, skerr.Wrapf(err, "writing push %q", revision)
	}
	return id, nil
}

// Confirm PushStore implements push.Store.
var _ push.Store = (*PushStore)(nil)
