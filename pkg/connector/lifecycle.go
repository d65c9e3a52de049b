package connector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/repositories"
	sqlaudit "github.com/ekaya-inc/ekaya-graphsink/pkg/sql"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/sqlgen"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/upgrade"
)

// CreateContainer creates the schema, tables, indexes and table types of a
// container. Every statement is guarded, so creating an existing container
// only fills in what is missing.
func (c *Connector) CreateContainer(ctx context.Context, desc *models.CreateContainerDescriptor) error {
	t, err := sqlgen.TargetForCreateContainer(desc, c.schema)
	if err != nil {
		return err
	}
	sqlaudit.LogResults(c.logger, sqlaudit.CheckContainer(desc))

	commands, err := c.generator.CreateContainer(t)
	if err != nil {
		return err
	}

	err = c.exec.WithTransaction(ctx, func(ctx context.Context, tx datasource.Tx) error {
		for _, cmd := range commands {
			if _, err := tx.Exec(ctx, cmd); err != nil {
				return err
			}
		}
		return c.record(func(repo repositories.ContainerRepository) error {
			return repo.Upsert(ctx, tx.SQL(), &models.ContainerRecord{
				Schema:     c.schema,
				Name:       t.Names.Main.Name(),
				Mode:       t.Mode,
				Properties: desc.Properties,
				Status:     models.ContainerStatusActive,
			})
		})
	})
	if err != nil {
		return fmt.Errorf("failed to create container %s: %w", t.Names.Main, err)
	}

	c.logger.Info("Created container",
		zap.String("container", t.Names.Main.String()),
		zap.String("mode", t.Mode.String()),
		zap.Int("properties", len(desc.Properties)))
	return nil
}

// EmptyContainer deletes every row of a container and keeps its tables.
func (c *Connector) EmptyContainer(ctx context.Context, desc *models.CreateContainerDescriptor) error {
	t, err := sqlgen.TargetForCreateContainer(desc, c.schema)
	if err != nil {
		return err
	}
	commands, err := c.generator.EmptyContainer(t)
	if err != nil {
		return err
	}
	if err := c.runCommands(ctx, commands); err != nil {
		return fmt.Errorf("failed to empty container %s: %w", t.Names.Main, err)
	}
	c.logger.Info("Emptied container", zap.String("container", t.Names.Main.String()))
	return nil
}

// RemoveContainer drops every table and table type of a container.
func (c *Connector) RemoveContainer(ctx context.Context, desc *models.CreateContainerDescriptor) error {
	t, err := sqlgen.TargetForCreateContainer(desc, c.schema)
	if err != nil {
		return err
	}
	commands, err := c.generator.RemoveContainer(t)
	if err != nil {
		return err
	}

	err = c.exec.WithTransaction(ctx, func(ctx context.Context, tx datasource.Tx) error {
		for _, cmd := range commands {
			if _, err := tx.Exec(ctx, cmd); err != nil {
				return err
			}
		}
		return c.record(func(repo repositories.ContainerRepository) error {
			return repo.SetStatus(ctx, tx.SQL(), c.schema, t.Names.Main.Name(), models.ContainerStatusRemoved)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", t.Names.Main, err)
	}
	c.logger.Info("Removed container", zap.String("container", t.Names.Main.String()))
	return nil
}

// ArchiveContainer renames every existing table and table type of a container
// with the archive suffix of the current time, freeing the container name.
// It returns the archived table names.
func (c *Connector) ArchiveContainer(ctx context.Context, desc *models.CreateContainerDescriptor) ([]string, error) {
	t, err := sqlgen.TargetForCreateContainer(desc, c.schema)
	if err != nil {
		return nil, err
	}
	at := c.now().UTC()

	var archived []string
	err = c.exec.WithTransaction(ctx, func(ctx context.Context, tx datasource.Tx) error {
		archived = archived[:0]
		q := tx.SQL()
		for _, table := range t.Names.All() {
			ok, err := upgrade.TableExists(ctx, q, table)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			to, err := upgrade.ArchiveTable(ctx, q, table, at)
			if err != nil {
				return err
			}
			archived = append(archived, to.String())
		}
		if err := forEachCustomType(t.Names, func(typeName naming.TableName) error {
			_, err := upgrade.ArchiveType(ctx, q, typeName, at)
			return err
		}); err != nil {
			return err
		}
		return c.record(func(repo repositories.ContainerRepository) error {
			return repo.SetStatus(ctx, q, c.schema, t.Names.Main.Name(), models.ContainerStatusArchived)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive container %s: %w", t.Names.Main, err)
	}

	c.logger.Info("Archived container",
		zap.String("container", t.Names.Main.String()),
		zap.Strings("tables", archived))
	return archived, nil
}

// RenameContainer moves every table and table type of a container to the
// names derived from newName. Constraints follow their tables.
func (c *Connector) RenameContainer(ctx context.Context, desc *models.CreateContainerDescriptor, newName string) error {
	t, err := sqlgen.TargetForCreateContainer(desc, c.schema)
	if err != nil {
		return err
	}
	to, err := naming.ForContainer(newName, c.schema)
	if err != nil {
		return err
	}
	if to.Main.Equal(t.Names.Main) {
		return nil
	}

	err = c.exec.WithTransaction(ctx, func(ctx context.Context, tx datasource.Tx) error {
		q := tx.SQL()
		for _, family := range models.TableFamilies {
			from, err := t.Names.ByFamily(family)
			if err != nil {
				return err
			}
			dest, err := to.ByFamily(family)
			if err != nil {
				return err
			}
			ok, err := upgrade.TableExists(ctx, q, from)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := upgrade.RenameTable(ctx, q, from, dest); err != nil {
				return err
			}

			if family == models.TableFamilyMain {
				continue
			}
			fromType, err := naming.CustomType(from)
			if err != nil {
				return err
			}
			destType, err := naming.CustomType(dest)
			if err != nil {
				return err
			}
			if _, err := upgrade.RenameType(ctx, q, fromType, destType); err != nil {
				return err
			}
		}
		return c.record(func(repo repositories.ContainerRepository) error {
			renamed, err := repo.Rename(ctx, q, c.schema, t.Names.Main.Name(), to.Main.Name())
			if err != nil || renamed {
				return err
			}
			return repo.Upsert(ctx, q, &models.ContainerRecord{
				Schema:     c.schema,
				Name:       to.Main.Name(),
				Mode:       t.Mode,
				Properties: desc.Properties,
				Status:     models.ContainerStatusActive,
			})
		})
	})
	if err != nil {
		return fmt.Errorf("failed to rename container %s to %s: %w", t.Names.Main, to.Main, err)
	}

	c.logger.Info("Renamed container",
		zap.String("container", t.Names.Main.String()),
		zap.String("new_name", to.Main.String()))
	return nil
}

// VerifyExistingContainer brings the container of an activated stream up to
// the current layout and reports what changed.
func (c *Connector) VerifyExistingContainer(ctx context.Context, stream *models.StreamDescriptor) (*upgrade.Report, error) {
	t, err := sqlgen.TargetForStream(stream, c.schema)
	if err != nil {
		return nil, err
	}

	var report *upgrade.Report
	err = c.exec.WithTransaction(ctx, func(ctx context.Context, tx datasource.Tx) error {
		report, err = c.upgrader.Run(ctx, tx.SQL(), t)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify container %s: %w", t.Names.Main, err)
	}
	return report, nil
}

// PurgeArchives drops the archived tables and types of the schema that are
// older than olderThan. With dryRun nothing is dropped. It returns the objects
// that were, or would have been, dropped.
func (c *Connector) PurgeArchives(ctx context.Context, olderThan time.Duration, dryRun bool) ([]upgrade.ArchivedObject, error) {
	if olderThan < 0 {
		return nil, apperrors.InvalidArgument("older than", "must not be negative")
	}
	cutoff := c.now().UTC().Add(-olderThan)

	var objects []upgrade.ArchivedObject
	err := c.exec.WithTransaction(ctx, func(ctx context.Context, tx datasource.Tx) error {
		var err error
		objects, err = upgrade.ListArchived(ctx, tx.SQL(), c.schema, cutoff)
		if err != nil || dryRun {
			return err
		}
		// Tables first: a type cannot be dropped while a table references it.
		for _, kind := range []upgrade.ArchivedObjectKind{upgrade.ArchivedTable, upgrade.ArchivedType} {
			for _, obj := range objects {
				if obj.Kind != kind {
					continue
				}
				if err := upgrade.DropArchived(ctx, tx.SQL(), obj); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to purge archives in %s: %w", c.schema, err)
	}

	for _, obj := range objects {
		c.logger.Info("Purged archived object",
			zap.String("name", obj.Name.String()),
			zap.String("kind", string(obj.Kind)),
			zap.Time("archived_at", obj.ArchivedAt),
			zap.Bool("dry_run", dryRun))
	}
	return objects, nil
}

// ListContainers returns the containers recorded in the bookkeeping table.
func (c *Connector) ListContainers(ctx context.Context) ([]*models.ContainerRecord, error) {
	if c.containers == nil {
		return nil, nil
	}
	var records []*models.ContainerRecord
	err := c.exec.WithTransaction(ctx, func(ctx context.Context, tx datasource.Tx) error {
		var err error
		records, err = c.containers.List(ctx, tx.SQL())
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// record runs fn against the container repository when one is configured.
func (c *Connector) record(fn func(repositories.ContainerRepository) error) error {
	if c.containers == nil {
		return nil
	}
	if err := fn(c.containers); err != nil {
		return fmt.Errorf("failed to record container change: %w", err)
	}
	return nil
}

func forEachCustomType(names naming.TableNames, fn func(naming.TableName) error) error {
	for _, family := range sqlgen.BulkFamilies {
		table, err := names.ByFamily(family)
		if err != nil {
			return err
		}
		typeName, err := naming.CustomType(table)
		if err != nil {
			return err
		}
		if err := fn(typeName); err != nil {
			return err
		}
	}
	return nil
}
