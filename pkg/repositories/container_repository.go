// Package repositories stores the connector's bookkeeping rows.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
)

// DBTX is the subset of *sql.DB and *sql.Tx the repositories use.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ContainerRepository defines the interface for container registry access.
// Every method takes the connection or transaction to run on so registry
// writes commit together with the DDL they describe.
type ContainerRepository interface {
	// Upsert records a container, replacing the mode, properties and status of
	// an existing row.
	Upsert(ctx context.Context, q DBTX, rec *models.ContainerRecord) error

	// Rename moves a row to a new name and remembers the old one. Returns
	// false when no row was registered under the old name.
	Rename(ctx context.Context, q DBTX, schema, from, to string) (bool, error)

	// SetStatus changes the lifecycle status of a container.
	SetStatus(ctx context.Context, q DBTX, schema, name string, status models.ContainerStatus) error

	// Get returns a container (nil if not registered).
	Get(ctx context.Context, q DBTX, schema, name string) (*models.ContainerRecord, error)

	// List returns every registered container ordered by schema and name.
	List(ctx context.Context, q DBTX) ([]*models.ContainerRecord, error)
}

// containerRepository implements ContainerRepository on SQL Server.
type containerRepository struct{}

// NewContainerRepository creates a new container repository.
func NewContainerRepository() ContainerRepository {
	return &containerRepository{}
}

const (
	upsertContainerQuery = `
		MERGE [dbo].[GraphSinkContainers] WITH (HOLDLOCK) AS t
		USING (SELECT @SchemaName AS [SchemaName], @Name AS [Name]) AS s
		ON t.[SchemaName] = s.[SchemaName] AND t.[Name] = s.[Name]
		WHEN MATCHED THEN
			UPDATE SET [Mode] = @Mode, [Properties] = @Properties, [Status] = @Status, [UpdatedAt] = SYSDATETIMEOFFSET()
		WHEN NOT MATCHED THEN
			INSERT ([SchemaName], [Name], [Mode], [Properties], [Status])
			VALUES (@SchemaName, @Name, @Mode, @Properties, @Status);`

	renameContainerQuery = `
		UPDATE [dbo].[GraphSinkContainers]
		SET [Name] = @NewName, [RenamedFrom] = @Name, [UpdatedAt] = SYSDATETIMEOFFSET()
		WHERE [SchemaName] = @SchemaName AND [Name] = @Name`

	setContainerStatusQuery = `
		UPDATE [dbo].[GraphSinkContainers]
		SET [Status] = @Status, [UpdatedAt] = SYSDATETIMEOFFSET()
		WHERE [SchemaName] = @SchemaName AND [Name] = @Name`

	selectContainerColumns = `
		SELECT [SchemaName], [Name], [Mode], [Properties], [Status], [RenamedFrom], [CreatedAt], [UpdatedAt]
		FROM [dbo].[GraphSinkContainers]`

	getContainerQuery = selectContainerColumns + `
		WHERE [SchemaName] = @SchemaName AND [Name] = @Name`

	listContainersQuery = selectContainerColumns + `
		ORDER BY [SchemaName], [Name]`
)

func (r *containerRepository) Upsert(ctx context.Context, q DBTX, rec *models.ContainerRecord) error {
	if rec == nil {
		return fmt.Errorf("container record is required")
	}
	status := rec.Status
	if status == "" {
		status = models.ContainerStatusActive
	}

	var properties any
	if len(rec.Properties) > 0 {
		data, err := json.Marshal(rec.Properties)
		if err != nil {
			return fmt.Errorf("failed to marshal container properties: %w", err)
		}
		properties = string(data)
	}

	_, err := q.ExecContext(ctx, upsertContainerQuery,
		sql.Named("SchemaName", rec.Schema),
		sql.Named("Name", rec.Name),
		sql.Named("Mode", string(rec.Mode)),
		sql.Named("Properties", properties),
		sql.Named("Status", string(status)),
	)
	if err != nil {
		return fmt.Errorf("failed to record container %s.%s: %w", rec.Schema, rec.Name, err)
	}
	return nil
}

func (r *containerRepository) Rename(ctx context.Context, q DBTX, schema, from, to string) (bool, error) {
	result, err := q.ExecContext(ctx, renameContainerQuery,
		sql.Named("NewName", to),
		sql.Named("Name", from),
		sql.Named("SchemaName", schema),
	)
	if err != nil {
		return false, fmt.Errorf("failed to rename container %s.%s: %w", schema, from, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rename result: %w", err)
	}
	return n > 0, nil
}

func (r *containerRepository) SetStatus(ctx context.Context, q DBTX, schema, name string, status models.ContainerStatus) error {
	_, err := q.ExecContext(ctx, setContainerStatusQuery,
		sql.Named("Status", string(status)),
		sql.Named("SchemaName", schema),
		sql.Named("Name", name),
	)
	if err != nil {
		return fmt.Errorf("failed to set status of container %s.%s: %w", schema, name, err)
	}
	return nil
}

func (r *containerRepository) Get(ctx context.Context, q DBTX, schema, name string) (*models.ContainerRecord, error) {
	row := q.QueryRowContext(ctx, getContainerQuery,
		sql.Named("SchemaName", schema),
		sql.Named("Name", name),
	)
	rec, err := scanContainer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get container %s.%s: %w", schema, name, err)
	}
	return rec, nil
}

func (r *containerRepository) List(ctx context.Context, q DBTX) ([]*models.ContainerRecord, error) {
	rows, err := q.QueryContext(ctx, listContainersQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	defer rows.Close()

	var records []*models.ContainerRecord
	for rows.Next() {
		rec, err := scanContainer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating containers: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContainer(s scanner) (*models.ContainerRecord, error) {
	var (
		rec         models.ContainerRecord
		mode        string
		status      string
		properties  sql.NullString
		renamedFrom sql.NullString
	)
	if err := s.Scan(&rec.Schema, &rec.Name, &mode, &properties, &status, &renamedFrom, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Mode = models.StreamMode(mode)
	rec.Status = models.ContainerStatus(status)
	rec.RenamedFrom = renamedFrom.String

	if properties.Valid && properties.String != "" {
		if err := json.Unmarshal([]byte(properties.String), &rec.Properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal properties of %s: %w", rec.Name, err)
		}
	}
	return &rec, nil
}

// Ensure containerRepository implements ContainerRepository at compile time.
var _ ContainerRepository = (*containerRepository)(nil)
