// Package push defines the store of pushes.
//
// Pushes are created by the job ingestion path. The alert engine only reads
// them, except for Put which tools and tests use to seed the catalog.
package push

import (
	"context"
	"time"

	"go.treeherder.org/infra/perf/go/types"
)

// Store persists pushes.
type Store interface {
	// Get returns the push with the given id, or an error wrapping
	// perferrors.ErrNotFound.
	Get(ctx context.Context, id types.PushID) (*types.Push, error)

	// GetByRevision returns the push of the repository with the given
	// revision, or an error wrapping perferrors.ErrNotFound.
	GetByRevision(ctx context.Context, repositoryID types.RepositoryID, revision string) (*types.Push, error)

	// Put creates a push, or returns the id of the existing push with the
	// same repository and revision.
	Put(ctx context.Context, repositoryID types.RepositoryID, revision string, ts time.Time) (types.PushID, error)
}
