package upgrade

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/sqlgen"
)

// EnsureColumn adds column to table unless the live catalog already has it.
// A table that does not exist is left alone. It reports whether the column was added.
func EnsureColumn(ctx context.Context, q Queryer, table naming.TableName, column sqlgen.ColumnDefinition) (bool, error) {
	added, err := EnsureColumns(ctx, q, table, []sqlgen.ColumnDefinition{column})
	if err != nil {
		return false, err
	}
	return len(added) == 1, nil
}

// EnsureColumns adds every missing column with a single catalog read and
// returns the names it added.
func EnsureColumns(ctx context.Context, q Queryer, table naming.TableName, columns []sqlgen.ColumnDefinition) ([]string, error) {
	if len(columns) == 0 {
		return nil, nil
	}
	ok, err := TableExists(ctx, q, table)
	if err != nil || !ok {
		return nil, err
	}

	existing, err := TableColumns(ctx, q, table)
	if err != nil {
		return nil, err
	}
	present := nameSet(existing)

	var added []string
	for _, c := range columns {
		if _, found := present[strings.ToLower(c.Name)]; found {
			continue
		}
		cmd, err := sqlgen.BuildAddColumn(table, c)
		if err != nil {
			return added, err
		}
		if _, err := q.ExecContext(ctx, cmd.Text); err != nil {
			return added, fmt.Errorf("failed to add column %s to %s: %w", c.Name, table, err)
		}
		present[strings.ToLower(c.Name)] = c.Name
		added = append(added, c.Name)
	}
	return added, nil
}
