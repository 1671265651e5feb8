// Package sqlrepositorystore implements repository.Store on CockroachDB.
package sqlrepositorystore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sql/pool"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/repository"
	"go.treeherder.org/infra/perf/go/types"
)

// statement is an SQL statement identifier.
type statement int

const (
	get statement = iota
	getByName
	list
	put
)

var statements = map[statement]string{
	get: `
		SELECT id, name, performance_alerts_enabled
		FROM Repository
		WHERE id=$1`,
	getByName: `
		SELECT id, name, performance_alerts_enabled
		FROM Repository
		WHERE name=$1`,
	list: `
		SELECT id, name, performance_alerts_enabled
		FROM Repository
		ORDER BY name`,
	put: `
		INSERT INTO Repository (name, performance_alerts_enabled)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET performance_alerts_enabled=EXCLUDED.performance_alerts_enabled
		RETURNING id`,
}

// RepositoryStore implements repository.Store.
type RepositoryStore struct {
	db pool.Pool
}

// New returns a new RepositoryStore.
func New(db pool.Pool) *RepositoryStore {
	return &RepositoryStore{db: db}
}

func (s *RepositoryStore) scanOne(ctx context.Context, notFound error, stmt statement, arg interface{}) (*types.Repository, error) {
	var r types.Repository
	err := s.db.QueryRow(ctx, statements[stmt], arg).Scan(&r.ID, &r.Name, &r.PerformanceAlertsEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, skerr.Wrapf(notFound, "repository %v", arg)
	}
	if err != nil {
		return nil, skerr.Wrapf(err, "reading repository %v", arg)
	}
	return &r, nil
}

// Get implements repository.Store.
func (s *RepositoryStore) Get(ctx context.Context, id types.RepositoryID) (*types.Repository, error) {
	return s.scanOne(ctx, perferrors.ErrNotFound, get, id)
}

// GetByName implements repository.Store.
func (s *RepositoryStore) GetByName(ctx context.Context, name string) (*types.Repository, error) {
	return s.scanOne(ctx, perferrors.ErrUnknownRepository, getByName, name)
}

// List implements repository.Store.
func (s *RepositoryStore) List(ctx context.Context) ([]types.Repository, error) {
	rows, err := s.db.Query(ctx, statements[list])
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer rows.Close()
	ret := []types.Repository{}
	for rows.Next() {
		var r types.Repository
		if err := rows.Scan(&r.ID, &r.Name, &r.PerformanceAlertsEnabled); err != nil {
			return nil, skerr.Wrap(err)
		}
		ret = append(ret, r)
	}
	return ret, skerr.Wrap(rows.Err())
}

// Put implements repository.Store.
func (s *RepositoryStore) Put(ctx context.Context, r types.Repository) (types.RepositoryID, error) {
	if r.Name == "" {
		return 0, skerr.Wrapf(perferrors.ErrValidation, "repository name must not be empty")
	}
	var id types.RepositoryID
	if err := s.db.QueryRow(ctx, statements[put], r.Name, r.PerformanceAlertsEnabled).Scan(&id); err != nil {
		return 0, skerr.Wrapf(err, "writing repository %q", r.Name)
	}
	return id, nil
}

// Confirm RepositoryStore implements repository.Store.
var _ repository.Store = (*RepositoryStore)(nil)
