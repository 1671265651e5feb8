// Package schema inspects the live schema of a database, so a server can
// refuse to start against a database that is missing tables or indexes.
package schema

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sql/pool"
)

// sqlTimeout bounds all the queries made by GetDescription.
const sqlTimeout = time.Minute

// TableNames takes a "tables" struct, a struct whose fields are slices of
// row types, and returns the lowercased field names, which are the table
// names.
func TableNames(tables interface{}) []string {
	ret := []string{}
	for _, structField := range reflect.VisibleFields(reflect.TypeOf(tables)) {
		ret = append(ret, strings.ToLower(structField.Name))
	}
	return ret
}

// Description describes the schema of a set of tables.
type Description struct {
	// ColumnNameAndType maps "table.column" to a description of its type.
	ColumnNameAndType map[string]string
	// IndexNames holds "table.index" for every secondary index, sorted.
	IndexNames []string
}

const typesQuery = `
SELECT
    column_name,
    CONCAT(data_type, ' def:', column_default, ' nullable:', is_nullable)
FROM
    information_schema.columns
WHERE
    table_name = $1`

const indexNameQuery = `
SELECT DISTINCT
    index_name
FROM
    information_schema.statistics
WHERE
    table_name = $1`

// GetDescription returns a Description for every table listed in tables.
func GetDescription(ctx context.Context, db pool.Pool, tables interface{}) (*Description, error) {
	ctx, cancel := context.WithTimeout(ctx, sqlTimeout)
	defer cancel()
	ret := &Description{
		ColumnNameAndType: map[string]string{},
		IndexNames:        []string{},
	}
	for _, tableName := range TableNames(tables) {
		if err := readColumns(ctx, db, tableName, ret); err != nil {
			return nil, skerr.Wrapf(err, "columns of %s", tableName)
		}
		if err := readIndexes(ctx, db, tableName, ret); err != nil {
			return nil, skerr.Wrapf(err, "indexes of %s", tableName)
		}
	}
	sort.Strings(ret.IndexNames)
	return ret, nil
}

func readColumns(ctx context.Context, db pool.Pool, tableName string, desc *Description) error {
	rows, err := db.Query(ctx, typesQuery, tableName)
	if err != nil {
		return skerr.Wrap(err)
	}
	defer rows.Close()
	for rows.Next() {
		var colName, colType string
		if err := rows.Scan(&colName, &colType); err != nil {
			return skerr.Wrap(err)
		}
		desc.ColumnNameAndType[tableName+"."+colName] = colType
	}
	return skerr.Wrap(rows.Err())
}

func readIndexes(ctx context.Context, db pool.Pool, tableName string, desc *Description) error {
	rows, err := db.Query(ctx, indexNameQuery, tableName)
	if err != nil {
		return skerr.Wrap(err)
	}
	defer rows.Close()
	for rows.Next() {
		var indexName string
		if err := rows.Scan(&indexName); err != nil {
			return skerr.Wrap(err)
		}
		// Every table has a primary key, its name carries no information.
		if indexName == "primary" || indexName == tableName+"_pkey" {
			continue
		}
		desc.IndexNames = append(desc.IndexNames, tableName+"."+indexName)
	}
	return skerr.Wrap(rows.Err())
}

// MissingTables returns the tables of the tables struct that have no columns
// in desc, i.e. that do not exist.
func MissingTables(desc *Description, tables interface{}) []string {
	present := map[string]bool{}
	for key := range desc.ColumnNameAndType {
		present[strings.SplitN(key, ".", 2)[0]] = true
	}
	missing := []string{}
	for _, name := range TableNames(tables) {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
