package sqlgen

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// BuildDeleteByEntity deletes every row of table whose column equals the entity id.
func BuildDeleteByEntity(table naming.TableName, column string, entityID uuid.UUID) Command {
	return Command{
		Text: fmt.Sprintf("DELETE FROM %s WHERE %s = @%s;",
			table, naming.QuoteName(column), ParamEntityID),
		Parameters: []Parameter{entityIDParameter(entityID)},
	}
}

// BuildDeleteEntity removes an entity from every table of a container,
// satellite tables first.
func BuildDeleteEntity(names naming.TableNames, entityID uuid.UUID) ([]Command, error) {
	if names.Main.IsZero() {
		return nil, apperrors.InvalidArgument("table names", "must not be empty")
	}
	if entityID == uuid.Nil {
		return nil, apperrors.InvalidArgument("entity id", "must not be nil")
	}
	return []Command{
		BuildDeleteByEntity(names.IncomingEdgeProperties, ColumnEntityID, entityID),
		BuildDeleteByEntity(names.OutgoingEdgeProperties, ColumnEntityID, entityID),
		BuildDeleteByEntity(names.IncomingEdges, ColumnEntityID, entityID),
		BuildDeleteByEntity(names.OutgoingEdges, ColumnEntityID, entityID),
		BuildDeleteByEntity(names.Codes, ColumnEntityID, entityID),
		BuildDeleteByEntity(names.Main, ColumnID, entityID),
	}, nil
}

func entityIDParameter(entityID uuid.UUID) Parameter {
	return Parameter{Name: ParamEntityID, Type: TypeUniqueIdentifier, Value: entityID}
}
