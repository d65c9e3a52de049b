// Package connector applies entity snapshots and container lifecycle
// operations to SQL Server through a datasource.Executor.
package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/repositories"
	sqlaudit "github.com/ekaya-inc/ekaya-graphsink/pkg/sql"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/sqlgen"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/upgrade"
)

// DefaultSchema is used when no schema is configured.
const DefaultSchema = "dbo"

// StoreOutcome reports what StoreData did with a snapshot.
type StoreOutcome int

const (
	Stored StoreOutcome = iota
	SkippedNewerVersion
	SkippedSameVersion
)

func (o StoreOutcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case SkippedNewerVersion:
		return "skipped_newer_version"
	case SkippedSameVersion:
		return "skipped_same_version"
	default:
		return "unknown"
	}
}

// Config holds the connector settings that shape generated SQL.
type Config struct {
	Schema      string
	NarrowTypes bool
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContainerRepository records container lifecycle changes in the
// bookkeeping table. Without it nothing is recorded.
func WithContainerRepository(repo repositories.ContainerRepository) Option {
	return func(c *Connector) {
		c.containers = repo
	}
}

// WithClock overrides the time source used for archive names.
func WithClock(now func() time.Time) Option {
	return func(c *Connector) {
		if now != nil {
			c.now = now
		}
	}
}

// Connector writes snapshots and manages containers in one SQL Server database.
type Connector struct {
	exec       datasource.Executor
	generator  *sqlgen.Generator
	upgrader   *upgrade.Upgrader
	containers repositories.ContainerRepository
	options    sqlgen.Options
	schema     string
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a Connector on exec.
func New(exec datasource.Executor, cfg Config, opts ...Option) (*Connector, error) {
	if exec == nil {
		return nil, apperrors.InvalidArgument("executor", "must not be nil")
	}

	c := &Connector{
		exec:    exec,
		options: sqlgen.Options{NarrowTypes: cfg.NarrowTypes},
		schema:  cfg.Schema,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	if c.schema == "" {
		c.schema = DefaultSchema
	}
	for _, opt := range opts {
		opt(c)
	}

	generator, err := sqlgen.NewGenerator(sqlgen.DefaultBuilders(c.options), sqlgen.WithLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	c.generator = generator
	c.upgrader = upgrade.NewUpgrader(c.options, c.logger)
	return c, nil
}

// Schema returns the schema containers are created in.
func (c *Connector) Schema() string {
	return c.schema
}

// StoreData writes one snapshot of an entity in a single transaction.
//
// In Sync mode the stored version is checked first: a newer stored version, or
// the same version with the same persist hash, leaves the container untouched.
// EventStream snapshots are always appended. Properties the stream does not
// declare get their columns added before the write.
func (c *Connector) StoreData(ctx context.Context, stream *models.StreamDescriptor, s *models.EntitySnapshot) (StoreOutcome, error) {
	t, err := sqlgen.TargetForStream(stream, c.schema)
	if err != nil {
		return Stored, err
	}
	if err := sqlgen.ValidateSnapshot(t, s); err != nil {
		return Stored, err
	}

	logger := c.logger.With(
		zap.String("stream_id", stream.ID.String()),
		zap.String("provider_id", stream.ProviderID.String()),
		zap.String("container", t.Names.Main.String()),
		zap.String("entity_id", s.ID.String()),
	)
	sqlaudit.LogResults(logger, sqlaudit.CheckSnapshot(s))

	commands, err := c.generator.StoreSnapshot(t, s)
	if err != nil {
		return Stored, err
	}
	undeclared, err := c.undeclaredColumns(t, s)
	if err != nil {
		return Stored, err
	}

	var outcome StoreOutcome
	err = c.exec.WithTransaction(ctx, func(ctx context.Context, tx datasource.Tx) error {
		outcome = Stored
		if t.Mode == models.StreamModeSync {
			skip, err := c.checkStored(ctx, tx, t, s)
			if err != nil {
				return err
			}
			if skip != Stored {
				outcome = skip
				return nil
			}
		}

		if len(undeclared) > 0 {
			added, err := upgrade.EnsureColumns(ctx, tx.SQL(), t.Names.Main, undeclared)
			if err != nil {
				return fmt.Errorf("failed to add property columns: %w", err)
			}
			for _, name := range added {
				logger.Info("Added column for undeclared property", zap.String("column", name))
			}
		}

		for _, cmd := range commands {
			if _, err := tx.Exec(ctx, cmd); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Stored, fmt.Errorf("failed to store entity %s: %w", s.ID, err)
	}

	if outcome != Stored {
		logger.Debug("Skipped snapshot", zap.String("outcome", outcome.String()),
			zap.Int64("persist_version", s.PersistInfo.Version))
	}
	return outcome, nil
}

// checkStored classifies the stored entity and reports whether the write
// should be skipped.
func (c *Connector) checkStored(ctx context.Context, tx datasource.Tx, t sqlgen.Target, s *models.EntitySnapshot) (StoreOutcome, error) {
	check, err := c.generator.ExistenceCheck(t, s)
	if err != nil {
		return Stored, err
	}
	v, err := tx.Scalar(ctx, check)
	if err != nil {
		return Stored, err
	}
	result, err := sqlgen.ClassifyExistence(v)
	if err != nil {
		return Stored, err
	}

	switch result {
	case models.NewerVersionExists:
		return SkippedNewerVersion, nil
	case models.SameVersionExists:
		lookup, err := sqlgen.BuildPersistHashLookup(t.Names.Main, s.ID)
		if err != nil {
			return Stored, err
		}
		stored, err := tx.Scalar(ctx, lookup)
		if err != nil {
			return Stored, err
		}
		if hash, ok := stored.(string); ok && hash == s.PersistInfo.Hash {
			return SkippedSameVersion, nil
		}
	}
	return Stored, nil
}

// undeclaredColumns returns the main table columns of properties the snapshot
// carries but the stream does not declare.
func (c *Connector) undeclaredColumns(t sqlgen.Target, s *models.EntitySnapshot) ([]sqlgen.ColumnDefinition, error) {
	resolved, err := sqlgen.ResolveSnapshotColumns(t.Mode, t.Properties, s, c.options.NarrowTypes)
	if err != nil {
		return nil, err
	}
	declared, err := sqlgen.ResolvePropertyColumns(t.Mode, t.Properties, c.options.NarrowTypes)
	if err != nil {
		return nil, err
	}
	var columns []sqlgen.ColumnDefinition
	for _, p := range resolved[len(declared):] {
		columns = append(columns, p.Column)
	}
	return columns, nil
}

// DeleteEntity removes every row of an entity from the stream's container.
func (c *Connector) DeleteEntity(ctx context.Context, stream *models.StreamDescriptor, entityID uuid.UUID) error {
	t, err := sqlgen.TargetForStream(stream, c.schema)
	if err != nil {
		return err
	}
	commands, err := c.generator.DeleteEntity(t, entityID)
	if err != nil {
		return err
	}
	if err := c.runCommands(ctx, commands); err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", entityID, err)
	}
	c.logger.Debug("Deleted entity",
		zap.String("container", t.Names.Main.String()),
		zap.String("entity_id", entityID.String()))
	return nil
}

// runCommands executes commands in order in one transaction.
func (c *Connector) runCommands(ctx context.Context, commands []sqlgen.Command) error {
	return c.exec.WithTransaction(ctx, func(ctx context.Context, tx datasource.Tx) error {
		for _, cmd := range commands {
			if _, err := tx.Exec(ctx, cmd); err != nil {
				return err
			}
		}
		return nil
	})
}

// IsRetryable reports whether a StoreData or DeleteEntity failure came from
// the executor rather than from the snapshot itself.
func IsRetryable(err error) bool {
	return errors.Is(err, apperrors.ErrExecutionFailure)
}
