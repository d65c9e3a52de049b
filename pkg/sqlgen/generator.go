package sqlgen

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// MainBuilder writes the main table row of a snapshot.
type MainBuilder interface {
	BuildMainUpsert(t Target, s *models.EntitySnapshot) ([]Command, error)
}

// CodeBuilder writes the code rows of a snapshot.
type CodeBuilder interface {
	BuildCodeUpsert(t Target, s *models.EntitySnapshot) ([]Command, error)
}

// EdgeBuilder writes the edge rows of a snapshot for one direction.
type EdgeBuilder interface {
	BuildEdgeUpsert(t Target, s *models.EntitySnapshot, direction models.EdgeDirection) ([]Command, error)
}

// EdgePropertyBuilder writes the edge property rows of a snapshot for one direction.
type EdgePropertyBuilder interface {
	BuildEdgePropertyUpsert(t Target, s *models.EntitySnapshot, direction models.EdgeDirection) ([]Command, error)
}

// DeleteBuilder removes an entity from a container.
type DeleteBuilder interface {
	BuildDelete(t Target, entityID uuid.UUID) ([]Command, error)
}

// DefinitionBuilder creates the objects of a container.
type DefinitionBuilder interface {
	BuildDefinitions(t Target) ([]Command, error)
}

// Builders is the set of strategies a Generator delegates to.
type Builders struct {
	Main           MainBuilder
	Codes          CodeBuilder
	Edges          EdgeBuilder
	EdgeProperties EdgePropertyBuilder
	Delete         DeleteBuilder
	Definitions    DefinitionBuilder
}

// Options tune the standard builders.
type Options struct {
	// NarrowTypes maps declared property types to matching SQL types instead
	// of nvarchar(max).
	NarrowTypes bool
}

// DefaultBuilders returns the standard builders for both stream modes.
func DefaultBuilders(opts Options) Builders {
	b := NewStandardBuilder(opts)
	return Builders{
		Main:           b,
		Codes:          b,
		Edges:          b,
		EdgeProperties: b,
		Delete:         b,
		Definitions:    b,
	}
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Generator assembles the full command list of each container operation.
type Generator struct {
	builders Builders
	logger   *zap.Logger
}

// NewGenerator returns a Generator using builders. Every builder must be set.
func NewGenerator(builders Builders, opts ...GeneratorOption) (*Generator, error) {
	switch {
	case builders.Main == nil:
		return nil, apperrors.InvalidArgument("builders", "missing main builder")
	case builders.Codes == nil:
		return nil, apperrors.InvalidArgument("builders", "missing code builder")
	case builders.Edges == nil:
		return nil, apperrors.InvalidArgument("builders", "missing edge builder")
	case builders.EdgeProperties == nil:
		return nil, apperrors.InvalidArgument("builders", "missing edge property builder")
	case builders.Delete == nil:
		return nil, apperrors.InvalidArgument("builders", "missing delete builder")
	case builders.Definitions == nil:
		return nil, apperrors.InvalidArgument("builders", "missing definition builder")
	}

	g := &Generator{builders: builders, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// CreateContainer returns the commands creating every object of t.
func (g *Generator) CreateContainer(t Target) ([]Command, error) {
	commands, err := g.builders.Definitions.BuildDefinitions(t)
	if err != nil {
		return nil, fmt.Errorf("create container %s: %w", t.Names.Main, err)
	}
	g.logger.Debug("Built container definition",
		zap.String("container", t.Names.Main.String()),
		zap.Int("commands", len(commands)))
	return commands, nil
}

// StoreSnapshot returns the commands writing a snapshot to every table, main
// table first.
func (g *Generator) StoreSnapshot(t Target, s *models.EntitySnapshot) ([]Command, error) {
	if err := ValidateSnapshot(t, s); err != nil {
		return nil, err
	}

	type step struct {
		table naming.TableName
		build func() ([]Command, error)
	}
	steps := []step{
		{t.Names.Main, func() ([]Command, error) { return g.builders.Main.BuildMainUpsert(t, s) }},
		{t.Names.Codes, func() ([]Command, error) { return g.builders.Codes.BuildCodeUpsert(t, s) }},
	}
	for _, direction := range models.EdgeDirections {
		table, err := t.Names.Edges(direction)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{table, func() ([]Command, error) {
			return g.builders.Edges.BuildEdgeUpsert(t, s, direction)
		}})
	}
	for _, direction := range models.EdgeDirections {
		table, err := t.Names.EdgeProperties(direction)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{table, func() ([]Command, error) {
			return g.builders.EdgeProperties.BuildEdgePropertyUpsert(t, s, direction)
		}})
	}

	var commands []Command
	for _, st := range steps {
		cmds, err := st.build()
		if err != nil {
			return nil, fmt.Errorf("store entity %s in %s: %w", s.ID, st.table, err)
		}
		commands = append(commands, cmds...)
	}

	g.logger.Debug("Built snapshot commands",
		zap.String("container", t.Names.Main.String()),
		zap.String("entity_id", s.ID.String()),
		zap.Int("commands", len(commands)))
	return commands, nil
}

// DeleteEntity returns the commands removing an entity.
func (g *Generator) DeleteEntity(t Target, entityID uuid.UUID) ([]Command, error) {
	commands, err := g.builders.Delete.BuildDelete(t, entityID)
	if err != nil {
		return nil, fmt.Errorf("delete entity %s: %w", entityID, err)
	}
	return commands, nil
}

// ExistenceCheck returns the scalar query classifying the stored version of s.
func (g *Generator) ExistenceCheck(t Target, s *models.EntitySnapshot) (Command, error) {
	if s == nil {
		return Command{}, apperrors.InvalidArgument("snapshot", "must not be nil")
	}
	return BuildExistenceCheck(t.Names.Main, s.ID, s.PersistInfo.Version)
}

// EmptyContainer returns the commands deleting every row of t.
func (g *Generator) EmptyContainer(t Target) ([]Command, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	return BuildEmptyContainer(t.Names), nil
}

// RemoveContainer returns the commands dropping every object of t.
func (g *Generator) RemoveContainer(t Target) ([]Command, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	return BuildRemoveContainer(t.Names)
}

// ValidateSnapshot checks that a snapshot can be written to t.
func ValidateSnapshot(t Target, s *models.EntitySnapshot) error {
	if err := t.validate(); err != nil {
		return err
	}
	if s == nil {
		return apperrors.InvalidArgument("snapshot", "must not be nil")
	}
	if s.ID == uuid.Nil {
		return apperrors.InvalidArgument("snapshot id", "must not be nil")
	}
	if s.StreamMode != "" && s.StreamMode != t.Mode {
		return apperrors.InvalidArgument("snapshot stream mode",
			fmt.Sprintf("%s does not match container mode %s", s.StreamMode, t.Mode))
	}
	if t.Mode == models.StreamModeEventStream {
		if !s.ChangeType.IsValid() {
			return apperrors.UnrecognizedEnum("change type", s.ChangeType)
		}
		if s.CorrelationID == uuid.Nil {
			return apperrors.InvalidArgument("correlation id", "is required in EventStream mode")
		}
	}
	return nil
}
