// Package upgrade patches the schema of an existing container in place. Every
// routine first reads the live catalog and only then changes anything, so
// re-running an upgrade is harmless. Routines run inside a caller-supplied
// transaction and never commit.
package upgrade

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// Queryer is the subset of *sql.Tx the upgrade routines use.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	objectExistsQuery = `SELECT CASE WHEN OBJECT_ID(@Name, N'U') IS NULL THEN 0 ELSE 1 END`

	typeExistsQuery = `SELECT CASE WHEN TYPE_ID(@Name) IS NULL THEN 0 ELSE 1 END`

	tableColumnsQuery = `
		SELECT c.name
		FROM sys.columns c
		WHERE c.object_id = OBJECT_ID(@Name, N'U')
		ORDER BY c.column_id`

	typeColumnsQuery = `
		SELECT c.name
		FROM sys.table_types tt
		JOIN sys.columns c ON c.object_id = tt.type_table_object_id
		WHERE tt.user_type_id = TYPE_ID(@Name)
		ORDER BY c.column_id`

	constraintsQuery = `
		SELECT o.name
		FROM sys.objects o
		WHERE o.parent_object_id = OBJECT_ID(@Name, N'U')
		  AND o.type IN ('PK', 'UQ', 'F', 'C', 'D')
		ORDER BY o.name`

	renameStatement = `EXEC sp_rename @objname = @ObjName, @newname = @NewName, @objtype = @ObjType`
)

// sp_rename object classes.
const (
	objectTypeObject   = "OBJECT"
	objectTypeUserType = "USERDATATYPE"
)

// TableExists reports whether a user table exists.
func TableExists(ctx context.Context, q Queryer, table naming.TableName) (bool, error) {
	return exists(ctx, q, objectExistsQuery, table)
}

// TypeExists reports whether a user-defined type exists.
func TypeExists(ctx context.Context, q Queryer, typeName naming.TableName) (bool, error) {
	return exists(ctx, q, typeExistsQuery, typeName)
}

func exists(ctx context.Context, q Queryer, query string, name naming.TableName) (bool, error) {
	var found int
	if err := q.QueryRowContext(ctx, query, sql.Named("Name", name.String())).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	return found == 1, nil
}

// TableColumns returns the column names of a table in ordinal order.
func TableColumns(ctx context.Context, q Queryer, table naming.TableName) ([]string, error) {
	return listNames(ctx, q, tableColumnsQuery, table)
}

// TypeColumns returns the column names of a table type in ordinal order.
func TypeColumns(ctx context.Context, q Queryer, typeName naming.TableName) ([]string, error) {
	return listNames(ctx, q, typeColumnsQuery, typeName)
}

// Constraints returns the names of the constraints owned by a table.
func Constraints(ctx context.Context, q Queryer, table naming.TableName) ([]string, error) {
	return listNames(ctx, q, constraintsQuery, table)
}

func listNames(ctx context.Context, q Queryer, query string, name naming.TableName) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, sql.Named("Name", name.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog for %s: %w", name, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row for %s: %w", name, err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog rows for %s: %w", name, err)
	}
	return names, nil
}

// rename runs sp_rename. newName is the bare new name, never schema-qualified.
func rename(ctx context.Context, q Queryer, object, newName, objectType string) error {
	_, err := q.ExecContext(ctx, renameStatement,
		sql.Named("ObjName", object),
		sql.Named("NewName", newName),
		sql.Named("ObjType", objectType),
	)
	if err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", object, newName, err)
	}
	return nil
}

// nameSet indexes names case-insensitively, matching SQL Server identifier comparison.
func nameSet(names []string) map[string]string {
	set := make(map[string]string, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = n
	}
	return set
}
