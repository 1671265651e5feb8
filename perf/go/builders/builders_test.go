package builders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/issuetracker"
	"go.treeherder.org/infra/perf/go/sql/sqltest"
)

func TestNewDBPoolFromConfig_MissingConnectionString_ReturnsError(t *testing.T) {
	_, err := NewDBPoolFromConfig(context.Background(), &config.InstanceConfig{})
	assert.Error(t, err)
}

func TestNewDBPoolFromConfig_BadConnectionString_ReturnsError(t *testing.T) {
	_, err := NewDBPoolFromConfig(context.Background(), &config.InstanceConfig{
		DataStoreConfig: config.DataStoreConfig{ConnectionString: "not a :// url"},
	})
	assert.Error(t, err)
}

func TestNewIssueTrackerFromConfig(t *testing.T) {
	tracker, err := NewIssueTrackerFromConfig(&config.InstanceConfig{})
	require.NoError(t, err)
	assert.Nil(t, tracker)

	tracker, err = NewIssueTrackerFromConfig(&config.InstanceConfig{
		IssueTrackerConfig: config.IssueTrackerConfig{URL: "https://bugzilla.example.org"},
	})
	require.NoError(t, err)
	assert.IsType(t, &issuetracker.Bugzilla{}, tracker)
}

func TestNewStores_BuildsEngineAndSheriff(t *testing.T) {
	db := sqltest.NewCockroachDBForTests(t, "builders")
	stores, err := newStores(db)
	require.NoError(t, err)

	cfg := &config.InstanceConfig{}
	cfg.ApplyDefaults()
	assert.NotNil(t, NewRegressionEngineFromStores(stores, cfg))
	s, err := NewSheriffFromStores(stores, cfg)
	require.NoError(t, err)
	assert.NotNil(t, s)
}
