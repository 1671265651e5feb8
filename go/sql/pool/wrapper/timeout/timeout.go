// Package timeout provides a wrapper for pool.Pool that reports every call
// made with a context.Context that has no deadline. Such a call can hang a
// worker forever if the database stalls.
package timeout

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.treeherder.org/infra/go/metrics2"
	"go.treeherder.org/infra/go/sklog"
	"go.treeherder.org/infra/go/sql/pool"
)

// ContextTimeout implements pool.Pool.
type ContextTimeout struct {
	db      pool.Pool
	missing metrics2.Counter
	strict  bool
}

// New returns a ContextTimeout that wraps the given pool.Pool. If strict is
// true a call without a deadline panics, which is what tests want.
func New(db pool.Pool, strict bool) ContextTimeout {
	return ContextTimeout{
		db:      db,
		missing: metrics2.GetCounter("sql_context_without_deadline"),
		strict:  strict,
	}
}

func (c ContextTimeout) confirmDeadline(ctx context.Context, method string) {
	if _, ok := ctx.Deadline(); ok {
		return
	}
	c.missing.Inc(1)
	if c.strict {
		panic("context has no deadline in call to " + method)
	}
	sklog.ErrorfWithDepth(2, "Context has no deadline in call to %s", method)
}

// Close implements pool.Pool.
func (c ContextTimeout) Close() {
	c.db.Close()
}

// Acquire implements pool.Pool.
func (c ContextTimeout) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	c.confirmDeadline(ctx, "Acquire")
	return c.db.Acquire(ctx)
}

// Config implements pool.Pool.
func (c ContextTimeout) Config() *pgxpool.Config {
	return c.db.Config()
}

// Exec implements pool.Pool.
func (c ContextTimeout) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	c.confirmDeadline(ctx, "Exec")
	return c.db.Exec(ctx, sql, arguments...)
}

// Query implements pool.Pool.
func (c ContextTimeout) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	c.confirmDeadline(ctx, "Query")
	return c.db.Query(ctx, sql, args...)
}

// QueryRow implements pool.Pool.
func (c ContextTimeout) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	c.confirmDeadline(ctx, "QueryRow")
	return c.db.QueryRow(ctx, sql, args...)
}

// SendBatch implements pool.Pool.
func (c ContextTimeout) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	c.confirmDeadline(ctx, "SendBatch")
	return c.db.SendBatch(ctx, b)
}

// Begin implements pool.Pool.
func (c ContextTimeout) Begin(ctx context.Context) (pgx.Tx, error) {
	c.confirmDeadline(ctx, "Begin")
	return c.db.Begin(ctx)
}

// BeginTx implements pool.Pool.
func (c ContextTimeout) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	c.confirmDeadline(ctx, "BeginTx")
	return c.db.BeginTx(ctx, txOptions)
}

// BeginFunc implements pool.Pool.
func (c ContextTimeout) BeginFunc(ctx context.Context, f func(pgx.Tx) error) error {
	c.confirmDeadline(ctx, "BeginFunc")
	return c.db.BeginFunc(ctx, f)
}

// BeginTxFunc implements pool.Pool.
func (c ContextTimeout) BeginTxFunc(ctx context.Context, txOptions pgx.TxOptions, f func(pgx.Tx) error) error {
	c.confirmDeadline(ctx, "BeginTxFunc")
	return c.db.BeginTxFunc(ctx, txOptions, f)
}

// CopyFrom implements pool.Pool.
func (c ContextTimeout) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	c.confirmDeadline(ctx, "CopyFrom")
	return c.db.CopyFrom(ctx, tableName, columnNames, rowSrc)
}

// Ping implements pool.Pool.
func (c ContextTimeout) Ping(ctx context.Context) error {
	c.confirmDeadline(ctx, "Ping")
	return c.db.Ping(ctx)
}

// Confirm ContextTimeout implements pool.Pool.
var _ pool.Pool = ContextTimeout{}
