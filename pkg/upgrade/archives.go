package upgrade

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// ArchivedObjectKind distinguishes archived tables from archived table types.
type ArchivedObjectKind string

const (
	ArchivedTable ArchivedObjectKind = "table"
	ArchivedType  ArchivedObjectKind = "type"
)

// ArchivedObject is a table or table type renamed with an archive suffix.
type ArchivedObject struct {
	Name       naming.TableName
	Kind       ArchivedObjectKind
	ArchivedAt time.Time
}

const archiveCandidatesQuery = `
		SELECT t.name, 'U' AS kind
		FROM sys.tables t
		WHERE t.schema_id = SCHEMA_ID(@Schema)
		UNION ALL
		SELECT tt.name, 'TT' AS kind
		FROM sys.table_types tt
		WHERE tt.schema_id = SCHEMA_ID(@Schema) AND tt.is_user_defined = 1
		ORDER BY 1`

// ListArchived returns the archived tables and types of schema that were
// archived before cutoff. A zero cutoff returns all of them.
func ListArchived(ctx context.Context, q Queryer, schema string, cutoff time.Time) ([]ArchivedObject, error) {
	rows, err := q.QueryContext(ctx, archiveCandidatesQuery, sql.Named("Schema", schema))
	if err != nil {
		return nil, fmt.Errorf("failed to list archived objects in %s: %w", schema, err)
	}
	defer rows.Close()

	var objects []ArchivedObject
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan archived object: %w", err)
		}
		at, ok := naming.ParseArchiveSuffix(name)
		if !ok || (!cutoff.IsZero() && !at.Before(cutoff)) {
			continue
		}
		tn, err := naming.NewTableName(schema, name)
		if err != nil {
			return nil, err
		}
		obj := ArchivedObject{Name: tn, Kind: ArchivedTable, ArchivedAt: at}
		if kind == "TT" {
			obj.Kind = ArchivedType
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list archived objects in %s: %w", schema, err)
	}
	return objects, nil
}

// DropArchived drops an archived table or type.
func DropArchived(ctx context.Context, q Queryer, obj ArchivedObject) error {
	statement := fmt.Sprintf("DROP TABLE IF EXISTS %s;", obj.Name)
	if obj.Kind == ArchivedType {
		statement = fmt.Sprintf("DROP TYPE IF EXISTS %s;", obj.Name)
	}
	if _, err := q.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("failed to drop archived %s %s: %w", obj.Kind, obj.Name, err)
	}
	return nil
}
