package sqlgen

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// Fixed column names.
const (
	ColumnID                 = "Id"
	ColumnPersistVersion     = "PersistVersion"
	ColumnPersistHash        = "PersistHash"
	ColumnOriginEntityCode   = "OriginEntityCode"
	ColumnEntityType         = "EntityType"
	ColumnTimestamp          = "Timestamp"
	ColumnChangeType         = "ChangeType"
	ColumnCorrelationID      = "CorrelationId"
	ColumnEntityID           = "EntityId"
	ColumnCode               = "Code"
	ColumnIsOriginEntityCode = "IsOriginEntityCode"
	ColumnEdgeType           = "EdgeType"
	ColumnToCode             = "ToCode"
	ColumnFromCode           = "FromCode"
	ColumnEdgeID             = "EdgeId"
	ColumnKeyName            = "KeyName"
	ColumnValue              = "Value"
)

// ColumnDefinition describes one physical column. It is a plain value.
// Collation is empty for the database default.
type ColumnDefinition struct {
	Name       string
	Type       string
	Collation  string
	Nullable   bool
	PrimaryKey bool
	Indexed    bool
}

// RowColumn pairs a column with the function extracting its value from a row.
type RowColumn[R any] struct {
	Column ColumnDefinition
	Value  func(R) any
}

// Definitions strips the extractors from a column list.
func Definitions[R any](columns []RowColumn[R]) []ColumnDefinition {
	defs := make([]ColumnDefinition, len(columns))
	for i, c := range columns {
		defs[i] = c.Column
	}
	return defs
}

// Values extracts one row's values in column order.
func Values[R any](columns []RowColumn[R], row R) []any {
	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = c.Value(row)
	}
	return values
}

// CodeRow is one row of a code table.
type CodeRow struct {
	EntityID      uuid.UUID
	Code          string
	IsOrigin      bool
	ChangeType    models.ChangeType
	CorrelationID uuid.UUID
}

// EdgeRow is one row of an edge table. Code holds ToCode or FromCode
// depending on the direction.
type EdgeRow struct {
	ID            uuid.UUID
	EntityID      uuid.UUID
	EdgeType      string
	Code          string
	ChangeType    models.ChangeType
	CorrelationID uuid.UUID
}

// EdgePropertyRow is one row of an edge property table.
type EdgePropertyRow struct {
	EdgeID        uuid.UUID
	KeyName       string
	EntityID      uuid.UUID
	Value         string
	CorrelationID uuid.UUID
}

// fixedMainColumns returns the non-property columns of the main table.
func fixedMainColumns(mode models.StreamMode) ([]RowColumn[*models.EntitySnapshot], error) {
	columns := []RowColumn[*models.EntitySnapshot]{
		{
			Column: ColumnDefinition{Name: ColumnID, Type: TypeUniqueIdentifier, PrimaryKey: true},
			Value:  func(s *models.EntitySnapshot) any { return s.ID },
		},
		{
			Column: ColumnDefinition{Name: ColumnPersistVersion, Type: TypeBigInt, Nullable: true},
			Value:  func(s *models.EntitySnapshot) any { return s.PersistInfo.Version },
		},
		{
			Column: ColumnDefinition{Name: ColumnPersistHash, Type: TypeNVarCharMax, Nullable: true},
			Value:  func(s *models.EntitySnapshot) any { return nullableString(s.PersistInfo.Hash) },
		},
		{
			Column: ColumnDefinition{Name: ColumnOriginEntityCode, Type: TypeNVarCharMax, Nullable: true},
			Value:  func(s *models.EntitySnapshot) any { return nullableString(s.OriginEntityCode) },
		},
		{
			Column: ColumnDefinition{Name: ColumnEntityType, Type: TypeNVarChar450, Nullable: true},
			Value:  func(s *models.EntitySnapshot) any { return nullableString(s.EntityType) },
		},
		{
			Column: ColumnDefinition{Name: ColumnTimestamp, Type: TypeDateTimeOffset, Nullable: true},
			Value: func(s *models.EntitySnapshot) any {
				if s.Timestamp.IsZero() {
					return nil
				}
				return s.Timestamp
			},
		},
	}

	switch mode {
	case models.StreamModeSync:
		return columns, nil
	case models.StreamModeEventStream:
		return append(columns,
			RowColumn[*models.EntitySnapshot]{
				Column: ColumnDefinition{Name: ColumnChangeType, Type: TypeNVarChar50, PrimaryKey: true},
				Value:  func(s *models.EntitySnapshot) any { return string(s.ChangeType) },
			},
			RowColumn[*models.EntitySnapshot]{
				Column: ColumnDefinition{Name: ColumnCorrelationID, Type: TypeUniqueIdentifier, PrimaryKey: true},
				Value:  func(s *models.EntitySnapshot) any { return s.CorrelationID },
			},
		), nil
	default:
		return nil, apperrors.UnrecognizedEnum("stream mode", mode)
	}
}

// MainColumns returns the main table columns: the fixed columns for the mode
// followed by one column per resolved property.
func MainColumns(mode models.StreamMode, properties []PropertyColumn) ([]RowColumn[*models.EntitySnapshot], error) {
	columns, err := fixedMainColumns(mode)
	if err != nil {
		return nil, err
	}
	for _, p := range properties {
		columns = append(columns, RowColumn[*models.EntitySnapshot]{
			Column: p.Column,
			Value:  p.extract,
		})
	}
	return columns, nil
}

// MainFixedColumnNames returns the reserved non-property column names of the main table.
func MainFixedColumnNames(mode models.StreamMode) ([]string, error) {
	columns, err := fixedMainColumns(mode)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Column.Name
	}
	return names, nil
}

// CodeColumns returns the code table columns.
func CodeColumns(mode models.StreamMode) ([]RowColumn[CodeRow], error) {
	columns := []RowColumn[CodeRow]{
		{
			Column: ColumnDefinition{Name: ColumnEntityID, Type: TypeUniqueIdentifier, Indexed: true},
			Value:  func(r CodeRow) any { return r.EntityID },
		},
		{
			Column: ColumnDefinition{Name: ColumnCode, Type: TypeNVarCharMax, Collation: KeyCollation},
			Value:  func(r CodeRow) any { return r.Code },
		},
		{
			Column: ColumnDefinition{Name: ColumnIsOriginEntityCode, Type: TypeBit},
			Value:  func(r CodeRow) any { return r.IsOrigin },
		},
	}

	switch mode {
	case models.StreamModeSync:
		return columns, nil
	case models.StreamModeEventStream:
		return append(columns,
			RowColumn[CodeRow]{
				Column: ColumnDefinition{Name: ColumnChangeType, Type: TypeNVarChar50},
				Value:  func(r CodeRow) any { return string(r.ChangeType) },
			},
			RowColumn[CodeRow]{
				Column: ColumnDefinition{Name: ColumnCorrelationID, Type: TypeUniqueIdentifier},
				Value:  func(r CodeRow) any { return r.CorrelationID },
			},
		), nil
	default:
		return nil, apperrors.UnrecognizedEnum("stream mode", mode)
	}
}

// EdgeColumns returns the edge table columns for a direction. In EventStream
// mode ChangeType and CorrelationId join the key so history rows can repeat an edge.
func EdgeColumns(mode models.StreamMode, direction models.EdgeDirection) ([]RowColumn[EdgeRow], error) {
	codeColumn, err := edgeCodeColumn(direction)
	if err != nil {
		return nil, err
	}

	columns := []RowColumn[EdgeRow]{
		{
			Column: ColumnDefinition{Name: ColumnID, Type: TypeUniqueIdentifier, PrimaryKey: true},
			Value:  func(r EdgeRow) any { return r.ID },
		},
		{
			Column: ColumnDefinition{Name: ColumnEntityID, Type: TypeUniqueIdentifier, Indexed: true},
			Value:  func(r EdgeRow) any { return r.EntityID },
		},
		{
			Column: ColumnDefinition{Name: ColumnEdgeType, Type: TypeNVarCharMax},
			Value:  func(r EdgeRow) any { return r.EdgeType },
		},
		{
			Column: ColumnDefinition{Name: codeColumn, Type: TypeNVarCharMax},
			Value:  func(r EdgeRow) any { return r.Code },
		},
	}

	switch mode {
	case models.StreamModeSync:
		return columns, nil
	case models.StreamModeEventStream:
		return append(columns,
			RowColumn[EdgeRow]{
				Column: ColumnDefinition{Name: ColumnChangeType, Type: TypeNVarChar50, PrimaryKey: true},
				Value:  func(r EdgeRow) any { return string(r.ChangeType) },
			},
			RowColumn[EdgeRow]{
				Column: ColumnDefinition{Name: ColumnCorrelationID, Type: TypeUniqueIdentifier, PrimaryKey: true},
				Value:  func(r EdgeRow) any { return r.CorrelationID },
			},
		), nil
	default:
		return nil, apperrors.UnrecognizedEnum("stream mode", mode)
	}
}

// EdgePropertyColumns returns the edge property table columns.
func EdgePropertyColumns(mode models.StreamMode) ([]RowColumn[EdgePropertyRow], error) {
	columns := []RowColumn[EdgePropertyRow]{
		{
			Column: ColumnDefinition{Name: ColumnEdgeID, Type: TypeUniqueIdentifier, PrimaryKey: true},
			Value:  func(r EdgePropertyRow) any { return r.EdgeID },
		},
		{
			Column: ColumnDefinition{Name: ColumnKeyName, Type: TypeNVarChar450, Collation: KeyCollation, PrimaryKey: true},
			Value:  func(r EdgePropertyRow) any { return r.KeyName },
		},
		{
			Column: ColumnDefinition{Name: ColumnEntityID, Type: TypeUniqueIdentifier, Indexed: true},
			Value:  func(r EdgePropertyRow) any { return r.EntityID },
		},
		{
			Column: ColumnDefinition{Name: ColumnValue, Type: TypeNVarCharMax, Nullable: true},
			Value:  func(r EdgePropertyRow) any { return r.Value },
		},
	}

	switch mode {
	case models.StreamModeSync:
		return columns, nil
	case models.StreamModeEventStream:
		return append(columns, RowColumn[EdgePropertyRow]{
			Column: ColumnDefinition{Name: ColumnCorrelationID, Type: TypeUniqueIdentifier, PrimaryKey: true},
			Value:  func(r EdgePropertyRow) any { return r.CorrelationID },
		}), nil
	default:
		return nil, apperrors.UnrecognizedEnum("stream mode", mode)
	}
}

// TableColumns returns the column definitions of one table family. Main table
// property columns come from properties.
func TableColumns(family models.TableFamily, mode models.StreamMode, properties []PropertyColumn) ([]ColumnDefinition, error) {
	switch family {
	case models.TableFamilyMain:
		cols, err := MainColumns(mode, properties)
		if err != nil {
			return nil, err
		}
		return Definitions(cols), nil
	case models.TableFamilyCode:
		cols, err := CodeColumns(mode)
		if err != nil {
			return nil, err
		}
		return Definitions(cols), nil
	case models.TableFamilyOutgoingEdge, models.TableFamilyIncomingEdge:
		cols, err := EdgeColumns(mode, familyDirection(family))
		if err != nil {
			return nil, err
		}
		return Definitions(cols), nil
	case models.TableFamilyOutgoingEdgeProperties, models.TableFamilyIncomingEdgeProperties:
		cols, err := EdgePropertyColumns(mode)
		if err != nil {
			return nil, err
		}
		return Definitions(cols), nil
	default:
		return nil, apperrors.UnrecognizedEnum("table family", family)
	}
}

// BulkFamilies lists the families written through table-valued parameters.
var BulkFamilies = []models.TableFamily{
	models.TableFamilyCode,
	models.TableFamilyOutgoingEdge,
	models.TableFamilyIncomingEdge,
	models.TableFamilyOutgoingEdgeProperties,
	models.TableFamilyIncomingEdgeProperties,
}

func familyDirection(family models.TableFamily) models.EdgeDirection {
	switch family {
	case models.TableFamilyIncomingEdge, models.TableFamilyIncomingEdgeProperties:
		return models.EdgeDirectionIncoming
	default:
		return models.EdgeDirectionOutgoing
	}
}

func edgeCodeColumn(direction models.EdgeDirection) (string, error) {
	switch direction {
	case models.EdgeDirectionOutgoing:
		return ColumnToCode, nil
	case models.EdgeDirectionIncoming:
		return ColumnFromCode, nil
	default:
		return "", apperrors.UnrecognizedEnum("edge direction", direction)
	}
}

// primaryKeyConstraintName derives PK_<table>_<key columns>.
func primaryKeyConstraintName(table naming.TableName, keys []string) (string, error) {
	name := "PK_" + table.Name()
	for _, k := range keys {
		name += "_" + k
	}
	constraint, err := naming.Sanitize(name)
	if err != nil {
		return "", fmt.Errorf("primary key constraint for %s: %w", table, err)
	}
	return constraint, nil
}

// indexName derives IX_<table>_<column>.
func indexName(table naming.TableName, column string) (string, error) {
	idx, err := naming.Sanitize("IX_" + table.Name() + "_" + column)
	if err != nil {
		return "", fmt.Errorf("index on %s.%s: %w", table, column, err)
	}
	return idx, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
