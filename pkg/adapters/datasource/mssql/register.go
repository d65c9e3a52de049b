package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/adapters/datasource"
)

// AdapterType is the registry key of the SQL Server executor.
const AdapterType = "mssql"

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        AdapterType,
			DisplayName: "Microsoft SQL Server",
			Description: "SQL Server 2016+, Azure SQL Database",
		},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (datasource.Executor, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, logger)
		},
	})
}
