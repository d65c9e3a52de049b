package sqlgen

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// BuildMainInsert appends one main table row. EventStream mode stores every
// snapshot as a new row keyed by (Id, ChangeType, CorrelationId).
func BuildMainInsert(table naming.TableName, columns []RowColumn[*models.EntitySnapshot], fixedCount int, s *models.EntitySnapshot) (Command, error) {
	params, err := mainParameters(columns, fixedCount, s)
	if err != nil {
		return Command{}, err
	}

	names := make([]string, len(columns))
	values := make([]string, len(columns))
	for i, c := range columns {
		names[i] = naming.QuoteName(c.Column.Name)
		values[i] = "@" + params[i].Name
	}

	text := fmt.Sprintf("INSERT INTO %s (%s)\nVALUES (%s);",
		table, strings.Join(names, ", "), strings.Join(values, ", "))
	return Command{Text: text, Parameters: params}, nil
}

// BuildMainMerge updates the main table row of an entity when it exists and
// inserts it otherwise, as a single statement. HOLDLOCK keeps two writers of the
// same new entity from both taking the insert branch.
func BuildMainMerge(table naming.TableName, columns []RowColumn[*models.EntitySnapshot], fixedCount int, s *models.EntitySnapshot) (Command, error) {
	params, err := mainParameters(columns, fixedCount, s)
	if err != nil {
		return Command{}, err
	}

	var (
		keyMatch []string
		sources  []string
		updates  []string
		names    = make([]string, len(columns))
		values   = make([]string, len(columns))
	)
	for i, c := range columns {
		name := naming.QuoteName(c.Column.Name)
		param := "@" + params[i].Name
		names[i] = name
		values[i] = param
		if c.Column.PrimaryKey {
			sources = append(sources, fmt.Sprintf("%s AS %s", param, name))
			keyMatch = append(keyMatch, fmt.Sprintf("[target].%s = [source].%s", name, name))
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = %s", name, param))
	}
	if len(keyMatch) == 0 {
		return Command{}, apperrors.InvalidArgument("columns", "have no primary key")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MERGE %s WITH (HOLDLOCK) AS [target]\n", table)
	fmt.Fprintf(&sb, "USING (SELECT %s) AS [source]\n", strings.Join(sources, ", "))
	fmt.Fprintf(&sb, "ON %s\n", strings.Join(keyMatch, " AND "))
	if len(updates) > 0 {
		sb.WriteString("WHEN MATCHED THEN\n")
		fmt.Fprintf(&sb, "%sUPDATE SET %s\n", indent, strings.Join(updates, ", "))
	}
	sb.WriteString("WHEN NOT MATCHED THEN\n")
	fmt.Fprintf(&sb, "%sINSERT (%s)\n", indent, strings.Join(names, ", "))
	fmt.Fprintf(&sb, "%sVALUES (%s);", indent, strings.Join(values, ", "))
	return Command{Text: sb.String(), Parameters: params}, nil
}

// mainParameters names fixed column parameters after their column and property
// parameters p0, p1... so arbitrary property names never reach parameter names.
func mainParameters(columns []RowColumn[*models.EntitySnapshot], fixedCount int, s *models.EntitySnapshot) ([]Parameter, error) {
	if s == nil {
		return nil, apperrors.InvalidArgument("snapshot", "must not be nil")
	}
	if fixedCount > len(columns) {
		return nil, apperrors.InvalidArgument("columns", "are fewer than the fixed columns")
	}
	params := make([]Parameter, len(columns))
	for i, c := range columns {
		name := c.Column.Name
		if i >= fixedCount {
			name = fmt.Sprintf("p%d", i-fixedCount)
		}
		params[i] = Parameter{Name: name, Type: c.Column.Type, Value: c.Value(s)}
	}
	return params, nil
}
