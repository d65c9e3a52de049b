package datasource

import (
	"context"
	"database/sql"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/sqlgen"
)

// ConnectionTester tests database connectivity.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	// Returns nil if connection is healthy, error otherwise.
	TestConnection(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// CommandRunner executes generated commands.
type CommandRunner interface {
	// Exec runs a command that returns no rows and reports the rows affected.
	Exec(ctx context.Context, cmd sqlgen.Command) (int64, error)

	// Scalar runs a command and returns the first column of the first row.
	// Returns nil when the command produces no rows.
	Scalar(ctx context.Context, cmd sqlgen.Command) (any, error)
}

// Tx is a CommandRunner bound to an open transaction.
type Tx interface {
	CommandRunner

	// SQL exposes the transaction for catalog routines that issue their own queries.
	SQL() *sql.Tx
}

// Executor runs commands against the target database.
// Implementations are safe for concurrent use.
type Executor interface {
	CommandRunner
	ConnectionTester

	// WithTransaction runs fn inside one transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
