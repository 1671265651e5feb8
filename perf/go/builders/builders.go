// Package builders builds objects from config.InstanceConfig objects.
//
// These are functions separate from config.InstanceConfig so that we don't end
// up with cyclical import issues.
package builders

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/go/sql/pool"
	"go.treeherder.org/infra/go/sql/pool/wrapper/timeout"
	"go.treeherder.org/infra/perf/go/alerts/sqlalertstore"
	"go.treeherder.org/infra/perf/go/config"
	"go.treeherder.org/infra/perf/go/datum/sqldatumstore"
	"go.treeherder.org/infra/perf/go/framework/sqlframeworkstore"
	"go.treeherder.org/infra/perf/go/issuetracker"
	"go.treeherder.org/infra/perf/go/push/sqlpushstore"
	"go.treeherder.org/infra/perf/go/regression"
	"go.treeherder.org/infra/perf/go/repository/sqlrepositorystore"
	"go.treeherder.org/infra/perf/go/sheriff"
	"go.treeherder.org/infra/perf/go/signature/sqlsignaturestore"
)

// pgxLogAdaptor allows bubbling pgx logs up into our application.
type pgxLogAdaptor struct{}

// Log a message at the given level with data key/value pairs. data may be nil.
func (pgxLogAdaptor) Log(ctx context.Context, level pgx.LogLevel, msg string, data map[string]interface{}) {
	switch level {
	case pgx.LogLevelWarn:
		sklog.Warningf("pgx - %s %v", msg, data)
	case pgx.LogLevelError:
		sklog.Errorf("pgx - %s %v", msg, data)
	}
}

// maxPoolConnections is the MaxConns of the pool unless the config sets one.
const maxPoolConnections = 100

// singletonPool is the one and only instance of *pgxpool.Pool that an
// application should have, used in newCockroachDBFromConfig.
var singletonPool *pgxpool.Pool

// singletonPoolMutex is used to enforce the singleton nature of singletonPool,
// used in newCockroachDBFromConfig
var singletonPoolMutex sync.Mutex

// newCockroachDBFromConfig opens an existing CockroachDB database.
//
// The schema is not applied automatically, see 'perfserver database init'.
func newCockroachDBFromConfig(ctx context.Context, instanceConfig *config.InstanceConfig) (*pgxpool.Pool, error) {
	singletonPoolMutex.Lock()
	defer singletonPoolMutex.Unlock()

	if singletonPool != nil {
		return singletonPool, nil
	}

	cfg, err := pgxpool.ParseConfig(instanceConfig.DataStoreConfig.ConnectionString)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed to parse database config: %q", instanceConfig.DataStoreConfig.ConnectionString)
	}

	cfg.MaxConns = maxPoolConnections
	if instanceConfig.DataStoreConfig.MaxConns > 0 {
		cfg.MaxConns = instanceConfig.DataStoreConfig.MaxConns
	}
	cfg.ConnConfig.Logger = pgxLogAdaptor{}
	singletonPool, err = pgxpool.ConnectConfig(ctx, cfg)
	return singletonPool, err
}

// NewDBPoolFromConfig returns the database pool of the instance. Every call
// made through it is checked for a deadline.
func NewDBPoolFromConfig(ctx context.Context, instanceConfig *config.InstanceConfig) (pool.Pool, error) {
	if instanceConfig.DataStoreConfig.ConnectionString == "" {
		return nil, skerr.Fmt("A connection_string must always be supplied.")
	}
	db, err := newCockroachDBFromConfig(ctx, instanceConfig)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return timeout.New(db, false), nil
}

// Stores holds every SQL store of an instance, all sharing one pool.
type Stores struct {
	Repositories *sqlrepositorystore.RepositoryStore
	Frameworks   *sqlframeworkstore.FrameworkStore
	Pushes       *sqlpushstore.PushStore
	Signatures   *sqlsignaturestore.SignatureStore
	Data         *sqldatumstore.DatumStore
	Alerts       *sqlalertstore.SQLAlertStore
}

// NewStoresFromConfig creates every store of the instance.
func NewStoresFromConfig(ctx context.Context, instanceConfig *config.InstanceConfig) (*Stores, error) {
	db, err := NewDBPoolFromConfig(ctx, instanceConfig)
	if err != nil {
		return nil, err
	}
	return newStores(db)
}

func newStores(db pool.Pool) (*Stores, error) {
	alertStore, err := sqlalertstore.New(db)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return &Stores{
		Repositories: sqlrepositorystore.New(db),
		Frameworks:   sqlframeworkstore.New(db),
		Pushes:       sqlpushstore.New(db),
		Signatures:   sqlsignaturestore.New(db),
		Data:         sqldatumstore.New(db),
		Alerts:       alertStore,
	}, nil
}

// NewIssueTrackerFromConfig returns the bug tracker client, or nil if no
// issue tracker URL is configured.
func NewIssueTrackerFromConfig(instanceConfig *config.InstanceConfig) (issuetracker.IssueTracker, error) {
	if instanceConfig.IssueTrackerConfig.URL == "" {
		sklog.Warning("No issue tracker configured, bug numbers will not be verified.")
		return nil, nil
	}
	b, err := issuetracker.New(instanceConfig.IssueTrackerConfig)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return b, nil
}

// NewSheriffFromStores returns the service behind the REST API.
func NewSheriffFromStores(stores *Stores, instanceConfig *config.InstanceConfig) (*sheriff.Sheriff, error) {
	tracker, err := NewIssueTrackerFromConfig(instanceConfig)
	if err != nil {
		return nil, err
	}
	return sheriff.New(stores.Alerts, stores.Repositories, stores.Signatures, tracker, instanceConfig.FrontendConfig.PageSize), nil
}

// NewRegressionEngineFromStores returns the detection engine of the
// instance.
func NewRegressionEngineFromStores(stores *Stores, instanceConfig *config.InstanceConfig) *regression.Engine {
	return regression.New(stores.Repositories, stores.Frameworks, stores.Signatures, stores.Data, stores.Alerts, instanceConfig.DetectionConfig)
}
