package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/ekaya-inc/ekaya-graphsink/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/logging"
)

// Adapter provides SQL Server connectivity and executes generated commands.
type Adapter struct {
	config  *Config
	db      *sql.DB
	logger  *zap.Logger
	ownedDB bool // true if the adapter opened the pool and must close it
}

// NewAdapter opens a SQL Server connection pool with the given config.
// Supports two authentication methods:
//  1. SQL Authentication (username/password)
//  2. Service Principal (Azure AD with client credentials)
func NewAdapter(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	driverName, connStr := connectionString(cfg)
	logger.Debug("Opening SQL Server connection",
		zap.String("driver", driverName),
		zap.String("dsn", logging.SanitizeConnectionString(connStr)))

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	// Test the connection immediately
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &Adapter{
		config:  cfg,
		db:      db,
		logger:  logger,
		ownedDB: true,
	}, nil
}

// NewAdapterFromDB wraps an existing pool. Close leaves the pool open.
func NewAdapterFromDB(db *sql.DB, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{db: db, logger: logger}
}

// connectionString returns the driver name and DSN for the configured auth method.
func connectionString(cfg *Config) (string, string) {
	query := url.Values{}
	query.Add("database", cfg.Database)

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}
	if cfg.AppName != "" {
		query.Add("app name", cfg.AppName)
	}

	if cfg.AuthMethod == AuthMethodServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID+"@"+cfg.TenantID)
		query.Add("password", cfg.ClientSecret)

		// For Azure AD, use azuresql driver
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", cfg.Host, cfg.Port, query.Encode())
	}

	return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		query.Encode(),
	)
}

// TestConnection verifies the database is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	// Run a simple query to ensure we have database access
	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	return nil
}

// Close releases the pool if the adapter opened it.
func (a *Adapter) Close() error {
	if a.ownedDB && a.db != nil {
		return a.db.Close()
	}
	return nil
}

// DB returns the underlying *sql.DB.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// Ensure Adapter implements Executor at compile time.
var _ datasource.Executor = (*Adapter)(nil)
