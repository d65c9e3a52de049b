package sqlgen

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// BuildCreateContainer returns every command creating a container: the schema,
// the six tables with their indexes and the table types of the bulk families.
func BuildCreateContainer(t Target, narrow bool) ([]Command, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	properties, err := ResolvePropertyColumns(t.Mode, t.Properties, narrow)
	if err != nil {
		return nil, err
	}

	schema, err := BuildCreateSchema(t.Names.Main.Schema())
	if err != nil {
		return nil, err
	}
	commands := []Command{schema}

	for _, family := range models.TableFamilies {
		table, err := t.Names.ByFamily(family)
		if err != nil {
			return nil, err
		}
		columns, err := TableColumns(family, t.Mode, properties)
		if err != nil {
			return nil, err
		}
		create, err := BuildCreateTable(table, columns)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", table, err)
		}
		commands = append(commands, create...)
	}

	for _, family := range BulkFamilies {
		typeName, err := t.CustomType(family)
		if err != nil {
			return nil, err
		}
		columns, err := TableColumns(family, t.Mode, nil)
		if err != nil {
			return nil, err
		}
		create, err := BuildCreateCustomType(typeName, columns)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", typeName, err)
		}
		commands = append(commands, create)
	}
	return commands, nil
}

// BuildEmptyContainer deletes all rows of every table, keeping the tables.
func BuildEmptyContainer(names naming.TableNames) []Command {
	tables := names.All()
	commands := make([]Command, 0, len(tables))
	for i := len(tables) - 1; i >= 0; i-- {
		commands = append(commands, Command{
			Text: fmt.Sprintf("IF OBJECT_ID(%s, N'U') IS NOT NULL\nDELETE FROM %s;", tables[i].Literal(), tables[i]),
		})
	}
	return commands
}

// BuildRemoveContainer drops every table and table type of a container that exists.
func BuildRemoveContainer(names naming.TableNames) ([]Command, error) {
	tables := names.All()
	commands := make([]Command, 0, 2*len(tables))
	for i := len(tables) - 1; i >= 0; i-- {
		commands = append(commands, Command{Text: fmt.Sprintf("DROP TABLE IF EXISTS %s;", tables[i])})
	}
	for _, family := range BulkFamilies {
		table, err := names.ByFamily(family)
		if err != nil {
			return nil, err
		}
		typeName, err := naming.CustomType(table)
		if err != nil {
			return nil, err
		}
		commands = append(commands, Command{Text: fmt.Sprintf("DROP TYPE IF EXISTS %s;", typeName)})
	}
	return commands, nil
}
