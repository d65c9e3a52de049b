// Package database manages the connector's own bookkeeping schema.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlserver"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// MigrationsTable records the applied bookkeeping migrations. It is kept apart
// from the default table so the connector can share a database with other
// migrate users.
const MigrationsTable = "GraphSinkSchemaMigrations"

// migrateLogger forwards golang-migrate progress to zap.
type migrateLogger struct {
	logger *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Core().Enabled(zap.DebugLevel)
}

// RunMigrations applies the pending registry migrations found in migrationsPath.
// It is idempotent. A database left dirty by an interrupted migration is
// reported rather than forced.
func RunMigrations(db *sql.DB, migrationsPath string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("migrations")

	driver, err := sqlserver.WithInstance(db, &sqlserver.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "sqlserver", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	m.Log = migrateLogger{logger: logger}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	if version, dirty, err := m.Version(); err == nil && dirty {
		return fmt.Errorf("registry migration %d is dirty; fix the %s table by hand and rerun", version, MigrationsTable)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("Container registry is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("Applied registry migrations", zap.Uint("version", version))
	return nil
}
