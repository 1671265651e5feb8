// Package sqlframeworkstore implements framework.Store on CockroachDB.
package sqlframeworkstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sql/pool"
	"go.treeherder.org/infra/perf/go/framework"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/types"
)

const columns = `id, name, enabled, lower_is_better`

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
		SELECT ` + columns + `
		FROM Framework
		WHERE id=$1`,
	getByName: `
		SELECT ` + columns + `
		FROM Framework
		WHERE name=$1`,
	list: `
		SELECT ` + columns + `
		FROM Framework
		ORDER BY name`,
	put: `
		INSERT INTO Framework (name, enabled, lower_is_better)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET enabled=EXCLUDED.enabled, lower_is_better=EXCLUDED.lower_is_better
		RETURNING id`,
}

// FrameworkStore implements framework.Store.
type FrameworkStore struct {
	db pool.Pool
}

// New returns a new FrameworkStore.
func New(db pool.Pool) *FrameworkStore {
	return &FrameworkStore{db: db}
}

func scan(row pgx.Row) (*types.Framework, error) {
	var f types.Framework
	if err := row.Scan(&f.ID, &f.Name, &f.Enabled, &f.LowerIsBetter); err != nil {
		return nil, err
	}
	return &f, nil
}

// Get implements framework.Store.
func (s *FrameworkStore) Get(ctx context.Context, id types.FrameworkID) (*types.Framework, error) {
	f, err := scan(s.db.QueryRow(ctx, statements[get], id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, skerr.Wrapf(perferrors.ErrNotFound, "framework %d", id)
	}
	return f, skerr.Wrapf(err, "reading framework %d", id)
}

// GetByName implements framework.Store.
func (s *FrameworkStore) GetByName(ctx context.Context, name string) (*types.Framework, error) {
	f, err := scan(s.db.QueryRow(ctx, statements[getByName], name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, skerr.Wrapf(perferrors.ErrUnknownFramework, "%q", name)
	}
	return f, skerr.Wrapf(err, "reading framework %q", name)
}

// List implements framework.Store.
func (s *FrameworkStore) List(ctx context.Context) ([]types.Framework, error) {
	rows, err := s.db.Query(ctx, statements[list])
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer rows.Close()
	ret := []types.Framework{}
	for rows.Next() {
		f, err := scan(rows)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		ret = append(ret, *f)
	}
	return ret, skerr.Wrap(rows.Err())
}

// Put implements framework.Store.
func (s *FrameworkStore) Put(ctx context.Context, f types.Framework) (types.FrameworkID, error) {
	if f.Name == "" {
		return 0, skerr.Wrapf(perferrors.ErrValidation, "framework name must not be empty")
	}
	var id types.FrameworkID
	if err := s.db.QueryRow(ctx, statements[put], f.Name, f.Enabled, f.LowerIsBetter).Scan(&id); err != nil {
		return 0, skerr.Wrapf(err, "writing framework %q", f.Name)
	}
	return id, nil
}

// Confirm FrameworkStore implements framework.Store.
var _ framework.Store = (*FrameworkStore)(nil)
