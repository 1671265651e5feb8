// Package repository defines the store of repositories, the CI branches that
// performance data is ingested for.
package repository

import (
	"context"

	"go.treeherder.org/infra/perf/go/types"
)

// Store persists repositories.
type Store interface {
	// Get returns the repository with the given id, or an error wrapping
	// perferrors.ErrNotFound.
	Get(ctx context.Context, id types.RepositoryID) (*types.Repository, error)

	// GetByName returns the named repository, or an error wrapping
	// perferrors.ErrUnknownRepository.
	GetByName(ctx context.Context, name string) (*types.Repository, error)

	// List returns all repositories ordered by name.
	List(ctx context.Context) ([]types.Repository, error)

	// Put creates the repository, or updates PerformanceAlertsEnabled if one
	// with the same name exists, and returns its id.
	Put(ctx context.Context, r types.Repository) (types.RepositoryID, error)
}
