package sqlgen

import (
	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
)

// StandardBuilder implements every builder interface for both stream modes.
type StandardBuilder struct {
	options Options
}

// NewStandardBuilder returns a builder using opts.
func NewStandardBuilder(opts Options) *StandardBuilder {
	return &StandardBuilder{options: opts}
}

// MainLayout resolves the main table columns a snapshot is written with:
// the declared properties followed by any property only the snapshot carries.
func (b *StandardBuilder) MainLayout(t Target, s *models.EntitySnapshot) ([]RowColumn[*models.EntitySnapshot], int, error) {
	properties, err := ResolveSnapshotColumns(t.Mode, t.Properties, s, b.options.NarrowTypes)
	if err != nil {
		return nil, 0, err
	}
	fixed, err := MainFixedColumnNames(t.Mode)
	if err != nil {
		return nil, 0, err
	}
	columns, err := MainColumns(t.Mode, properties)
	if err != nil {
		return nil, 0, err
	}
	return columns, len(fixed), nil
}

// BuildMainUpsert inserts in EventStream mode and merges in Sync mode.
func (b *StandardBuilder) BuildMainUpsert(t Target, s *models.EntitySnapshot) ([]Command, error) {
	if err := ValidateSnapshot(t, s); err != nil {
		return nil, err
	}
	columns, fixed, err := b.MainLayout(t, s)
	if err != nil {
		return nil, err
	}

	var cmd Command
	switch t.Mode {
	case models.StreamModeEventStream:
		cmd, err = BuildMainInsert(t.Names.Main, columns, fixed, s)
	case models.StreamModeSync:
		cmd, err = BuildMainMerge(t.Names.Main, columns, fixed, s)
	default:
		err = apperrors.UnrecognizedEnum("stream mode", t.Mode)
	}
	if err != nil {
		return nil, err
	}
	return []Command{cmd}, nil
}

// BuildCodeUpsert writes the entity codes.
func (b *StandardBuilder) BuildCodeUpsert(t Target, s *models.EntitySnapshot) ([]Command, error) {
	if err := ValidateSnapshot(t, s); err != nil {
		return nil, err
	}
	columns, err := CodeColumns(t.Mode)
	if err != nil {
		return nil, err
	}
	rowType, err := t.CustomType(models.TableFamilyCode)
	if err != nil {
		return nil, err
	}
	table := BulkTable[CodeRow]{
		Table:     t.Names.Codes,
		RowType:   rowType,
		Columns:   columns,
		MatchKeys: []string{ColumnCode, ColumnIsOriginEntityCode},
	}
	return writeBulk(t.Mode, table, s.ID, CodeRows(s))
}

// BuildEdgeUpsert writes the edges of one direction.
func (b *StandardBuilder) BuildEdgeUpsert(t Target, s *models.EntitySnapshot, direction models.EdgeDirection) ([]Command, error) {
	if err := ValidateSnapshot(t, s); err != nil {
		return nil, err
	}
	columns, err := EdgeColumns(t.Mode, direction)
	if err != nil {
		return nil, err
	}
	tableName, err := t.Names.Edges(direction)
	if err != nil {
		return nil, err
	}
	rowType, err := t.CustomType(edgeFamily(direction))
	if err != nil {
		return nil, err
	}
	rows, err := EdgeRows(s, direction)
	if err != nil {
		return nil, err
	}
	table := BulkTable[EdgeRow]{
		Table:     tableName,
		RowType:   rowType,
		Columns:   columns,
		MatchKeys: []string{ColumnID},
	}
	return writeBulk(t.Mode, table, s.ID, rows)
}

// BuildEdgePropertyUpsert writes the edge properties of one direction.
func (b *StandardBuilder) BuildEdgePropertyUpsert(t Target, s *models.EntitySnapshot, direction models.EdgeDirection) ([]Command, error) {
	if err := ValidateSnapshot(t, s); err != nil {
		return nil, err
	}
	columns, err := EdgePropertyColumns(t.Mode)
	if err != nil {
		return nil, err
	}
	tableName, err := t.Names.EdgeProperties(direction)
	if err != nil {
		return nil, err
	}
	rowType, err := t.CustomType(edgePropertiesFamily(direction))
	if err != nil {
		return nil, err
	}
	rows, err := EdgePropertyRows(s, direction)
	if err != nil {
		return nil, err
	}
	table := BulkTable[EdgePropertyRow]{
		Table:     tableName,
		RowType:   rowType,
		Columns:   columns,
		MatchKeys: []string{ColumnEdgeID, ColumnKeyName},
	}
	return writeBulk(t.Mode, table, s.ID, rows)
}

// BuildDelete removes an entity from every table.
func (b *StandardBuilder) BuildDelete(t Target, entityID uuid.UUID) ([]Command, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	return BuildDeleteEntity(t.Names, entityID)
}

// BuildDefinitions creates the container objects.
func (b *StandardBuilder) BuildDefinitions(t Target) ([]Command, error) {
	return BuildCreateContainer(t, b.options.NarrowTypes)
}

func writeBulk[R any](mode models.StreamMode, table BulkTable[R], entityID uuid.UUID, rows []R) ([]Command, error) {
	switch mode {
	case models.StreamModeEventStream:
		return BuildBulkInsert(table, rows)
	case models.StreamModeSync:
		return BuildSyncReconcile(table, entityID, rows)
	default:
		return nil, apperrors.UnrecognizedEnum("stream mode", mode)
	}
}

func edgeFamily(direction models.EdgeDirection) models.TableFamily {
	if direction == models.EdgeDirectionIncoming {
		return models.TableFamilyIncomingEdge
	}
	return models.TableFamilyOutgoingEdge
}

func edgePropertiesFamily(direction models.EdgeDirection) models.TableFamily {
	if direction == models.EdgeDirectionIncoming {
		return models.TableFamilyIncomingEdgeProperties
	}
	return models.TableFamilyOutgoingEdgeProperties
}
