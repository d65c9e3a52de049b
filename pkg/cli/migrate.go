package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/adapters/datasource/mssql"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the container registry migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			exec, err := datasource.NewExecutorFactory(a.logger).
				NewExecutor(ctx, mssql.AdapterType, a.cfg.SQLServer.ConfigMap())
			if err != nil {
				return fmt.Errorf("failed to connect to SQL Server: %w", err)
			}
			defer exec.Close()

			return a.migrate(exec)
		},
	}
}
