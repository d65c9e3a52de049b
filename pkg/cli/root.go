// Package cli implements the ekaya-graphsink command line.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/adapters/datasource/mssql"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/config"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/connector"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/database"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/logging"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/repositories"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/retry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath     string
	ContainerPath  string
	LogLevel       string
	SkipMigrations bool
	Version        string
}

// NewRootCommand creates the root command of the connector CLI.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:           "ekaya-graphsink",
		Short:         "Entity graph snapshots into SQL Server",
		Long:          "Creates and maintains entity containers in SQL Server and applies the snapshot topic to them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "configuration file")
	cmd.PersistentFlags().StringVar(&opts.ContainerPath, "container", "", "container definition file (overrides connector.container_file)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (overrides logging.level)")
	cmd.PersistentFlags().BoolVar(&opts.SkipMigrations, "skip-migrations", false, "do not apply or use the container registry")

	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewArchiveCommand(opts))
	cmd.AddCommand(NewRenameCommand(opts))
	cmd.AddCommand(NewEmptyCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewPurgeArchivesCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewConsumeCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// app is the loaded configuration of one command invocation.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	container *models.CreateContainerDescriptor
}

func loadApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.Version)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.NewLogger(level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	containerPath := opts.ContainerPath
	if containerPath == "" {
		containerPath = cfg.Connector.ContainerFile
		if !filepath.IsAbs(containerPath) {
			containerPath = filepath.Join(filepath.Dir(opts.ConfigPath), containerPath)
		}
	}
	desc, err := config.LoadContainerDefinition(containerPath, cfg.Connector.Mode())
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, container: desc}, nil
}

// connectorConfig returns the connector settings of the configuration.
func (a *app) connectorConfig() connector.Config {
	return connector.Config{
		Schema:      a.cfg.Connector.Schema,
		NarrowTypes: a.cfg.Connector.NarrowTypes,
	}
}

// stream describes the export stream bound to the configured container.
func (a *app) stream() *models.StreamDescriptor {
	return &models.StreamDescriptor{
		ID:            a.cfg.Connector.StreamID,
		ProviderID:    a.cfg.Connector.ProviderID,
		ContainerName: a.container.Name,
		Mode:          a.container.Mode,
		Properties:    a.container.Properties,
	}
}

// session is an open connection to the target database.
type session struct {
	exec      datasource.Executor
	connector *connector.Connector
}

func (s *session) Close() error {
	return s.exec.Close()
}

type dbProvider interface {
	DB() *sql.DB
}

// open connects to SQL Server, applies the registry migrations unless they are
// skipped, and returns a connector bound to the connection.
func (a *app) open(ctx context.Context, skipMigrations bool) (*session, error) {
	factory := datasource.NewExecutorFactory(a.logger)
	rc := retryConfig(a.cfg.Retry)
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		a.logger.Warn("SQL Server not reachable, retrying",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	exec, err := retry.DoWithResult(ctx, rc, func() (datasource.Executor, error) {
		return factory.NewExecutor(ctx, mssql.AdapterType, a.cfg.SQLServer.ConfigMap())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQL Server: %w", err)
	}

	opts := []connector.Option{connector.WithLogger(a.logger)}
	if !skipMigrations {
		if err := a.migrate(exec); err != nil {
			exec.Close()
			return nil, err
		}
		opts = append(opts, connector.WithContainerRepository(repositories.NewContainerRepository()))
	}

	conn, err := connector.New(exec, a.connectorConfig(), opts...)
	if err != nil {
		exec.Close()
		return nil, err
	}
	return &session{exec: exec, connector: conn}, nil
}

func (a *app) migrate(exec datasource.Executor) error {
	p, ok := exec.(dbProvider)
	if !ok {
		return fmt.Errorf("executor %T does not expose a database handle for migrations", exec)
	}
	return database.RunMigrations(p.DB(), a.cfg.MigrationsPath, a.logger)
}

// withSession loads the configuration, opens a session and runs fn.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app, s *session) error) error {
	a, err := loadApp(opts)
	if err != nil {
		return err
	}
	defer a.logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := a.open(ctx, opts.SkipMigrations)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, a, s)
}
