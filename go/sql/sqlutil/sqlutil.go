// Package sqlutil holds small helpers for building SQL statements and
// inspecting SQL errors.
package sqlutil

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgconn"
)

// uniqueViolation is the Postgres/CockroachDB SQLSTATE for a unique
// constraint violation.
const uniqueViolation = "23505"

// ValuesPlaceholders returns a set of SQL placeholder numbers grouped for use
// in an INSERT statement. For example, ValuesPlaceholders(2,3) returns
// ($1,$2),($3,$4),($5,$6). It panics if either param is <= 0.
func ValuesPlaceholders(valuesPerRow, numRows int) string {
	if valuesPerRow <= 0 || numRows <= 0 {
		panic("Cannot make ValuesPlaceholder with 0 rows or 0 values per row")
	}
	var values strings.Builder
	values.Grow(5 * valuesPerRow * numRows)
	for argIdx := 1; argIdx <= valuesPerRow*numRows; argIdx += valuesPerRow {
		if argIdx != 1 {
			values.WriteString(",")
		}
		values.WriteString("(")
		for i := 0; i < valuesPerRow; i++ {
			if i != 0 {
				values.WriteString(",")
			}
			values.WriteString("$")
			values.WriteString(strconv.Itoa(argIdx + i))
		}
		values.WriteString(")")
	}
	return values.String()
}

// IsUniqueViolation returns true if err, or any error it wraps, is a unique
// constraint violation reported by the database.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
