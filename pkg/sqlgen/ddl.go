package sqlgen

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

const indent = "    "

// BuildCreateSchema creates schema when it does not exist. CREATE SCHEMA must be
// the only statement in its batch, hence the EXEC.
func BuildCreateSchema(schema string) (Command, error) {
	if strings.TrimSpace(schema) == "" {
		schema = naming.DefaultSchema
	}
	s, err := naming.Sanitize(schema)
	if err != nil {
		return Command{}, fmt.Errorf("schema: %w", err)
	}

	create := "CREATE SCHEMA " + naming.QuoteName(s)
	text := fmt.Sprintf("IF SCHEMA_ID(N'%s') IS NULL\n%sEXEC(N'%s');",
		naming.EscapeStringLiteral(s), indent, naming.EscapeStringLiteral(create))
	return Command{Text: text}, nil
}

// BuildCreateTable returns the CREATE TABLE command, with its named primary key
// constraint when any column is a key, followed by one CREATE INDEX command per
// indexed column. Every command is guarded so re-running it is harmless.
func BuildCreateTable(table naming.TableName, columns []ColumnDefinition) ([]Command, error) {
	if err := validateDefinitions(table, columns); err != nil {
		return nil, err
	}

	var keys []string
	lines := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		lines = append(lines, indent+columnSQL(c))
		if c.PrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	if len(keys) > 0 {
		constraint, err := primaryKeyConstraintName(table, keys)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("%sCONSTRAINT %s PRIMARY KEY (%s)",
			indent, naming.QuoteName(constraint), quotedList(keys)))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "IF OBJECT_ID(%s, N'U') IS NULL\n", table.Literal())
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", table)
	sb.WriteString(strings.Join(lines, ",\n"))
	sb.WriteString("\n);")

	commands := []Command{{Text: sb.String()}}
	for _, c := range columns {
		if !c.Indexed {
			continue
		}
		idx, err := indexName(table, c.Name)
		if err != nil {
			return nil, err
		}
		text := fmt.Sprintf(
			"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE [name] = N'%s' AND [object_id] = OBJECT_ID(%s))\n"+
				"CREATE INDEX %s ON %s (%s);",
			naming.EscapeStringLiteral(idx), table.Literal(),
			naming.QuoteName(idx), table, naming.QuoteName(c.Name))
		commands = append(commands, Command{Text: text})
	}
	return commands, nil
}

// BuildCreateCustomType creates a table type with the given columns unless a
// type with that name already exists.
func BuildCreateCustomType(typeName naming.TableName, columns []ColumnDefinition) (Command, error) {
	if err := validateDefinitions(typeName, columns); err != nil {
		return Command{}, err
	}

	lines := make([]string, len(columns))
	for i, c := range columns {
		lines[i] = indent + columnSQL(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "IF TYPE_ID(%s) IS NULL\n", typeName.Literal())
	fmt.Fprintf(&sb, "CREATE TYPE %s AS TABLE (\n", typeName)
	sb.WriteString(strings.Join(lines, ",\n"))
	sb.WriteString("\n);")
	return Command{Text: sb.String()}, nil
}

// BuildAddColumn adds one nullable column to an existing table.
func BuildAddColumn(table naming.TableName, column ColumnDefinition) (Command, error) {
	if err := validateDefinitions(table, []ColumnDefinition{column}); err != nil {
		return Command{}, err
	}
	column.Nullable = true
	return Command{
		Text: fmt.Sprintf("ALTER TABLE %s ADD %s;", table, columnSQL(column)),
	}, nil
}

func validateDefinitions(table naming.TableName, columns []ColumnDefinition) error {
	if table.IsZero() {
		return apperrors.InvalidArgument("table", "must not be empty")
	}
	if len(columns) == 0 {
		return apperrors.InvalidArgument("columns", "must not be empty")
	}
	for _, c := range columns {
		if !naming.IsSanitized(c.Name) {
			return fmt.Errorf("%w: column %q is not a sanitized identifier", apperrors.ErrInvalidName, c.Name)
		}
		if strings.TrimSpace(c.Type) == "" {
			return apperrors.InvalidArgument("column "+c.Name, "has no type")
		}
		if c.Collation != "" && !naming.IsSanitized(c.Collation) {
			return fmt.Errorf("%w: collation %q of column %s", apperrors.ErrInvalidName, c.Collation, c.Name)
		}
	}
	return nil
}

func columnSQL(c ColumnDefinition) string {
	null := "NOT NULL"
	if c.Nullable {
		null = "NULL"
	}
	typ := c.Type
	if c.Collation != "" {
		typ += " COLLATE " + c.Collation
	}
	return naming.QuoteName(c.Name) + " " + typ + " " + null
}

func quotedList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = naming.QuoteName(n)
	}
	return strings.Join(quoted, ", ")
}

func columnNames(columns []ColumnDefinition) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}
