// Package framework defines the store of performance test frameworks.
package framework

import (
	"context"

	"go.treeherder.org/infra/perf/go/types"
)

// Store persists frameworks.
type Store interface {
	// Get returns the framework with the given id, or an error wrapping
	// perferrors.ErrNotFound.
	Get(ctx context.Context, id types.FrameworkID) (*types.Framework, error)

	// GetByName returns the named framework, or an error wrapping
	// perferrors.ErrUnknownFramework.
	GetByName(ctx context.Context, name string) (*types.Framework, error)

	// List returns all frameworks ordered by name.
	List(ctx context.Context) ([]types.Framework, error)

	// Put creates or updates the framework with the same name and returns
	// its id.
	Put(ctx context.Context, f types.Framework) (types.FrameworkID, error)
}
