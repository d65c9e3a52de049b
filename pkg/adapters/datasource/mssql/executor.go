package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/logging"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/sqlgen"
)

// queryRunner is satisfied by *sql.DB and *sql.Tx.
type queryRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Exec runs cmd outside any explicit transaction.
func (a *Adapter) Exec(ctx context.Context, cmd sqlgen.Command) (int64, error) {
	return execCommand(ctx, a.db, a.logger, cmd)
}

// Scalar runs cmd and returns the first column of the first row.
func (a *Adapter) Scalar(ctx context.Context, cmd sqlgen.Command) (any, error) {
	return scalarCommand(ctx, a.db, a.logger, cmd)
}

// WithTransaction runs fn inside one transaction.
func (a *Adapter) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx datasource.Tx) error) error {
	sqlTx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return &apperrors.ExecutionError{Operation: "begin transaction", Err: err}
	}

	if err := fn(ctx, &transaction{tx: sqlTx, logger: a.logger}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			a.logger.Warn("Failed to roll back transaction",
				zap.String("error", logging.SanitizeError(rbErr)))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return &apperrors.ExecutionError{Operation: "commit transaction", Err: err}
	}
	return nil
}

type transaction struct {
	tx     *sql.Tx
	logger *zap.Logger
}

func (t *transaction) Exec(ctx context.Context, cmd sqlgen.Command) (int64, error) {
	return execCommand(ctx, t.tx, t.logger, cmd)
}

func (t *transaction) Scalar(ctx context.Context, cmd sqlgen.Command) (any, error) {
	return scalarCommand(ctx, t.tx, t.logger, cmd)
}

func (t *transaction) SQL() *sql.Tx {
	return t.tx
}

func execCommand(ctx context.Context, r queryRunner, logger *zap.Logger, cmd sqlgen.Command) (int64, error) {
	args, err := namedArgs(cmd)
	if err != nil {
		return 0, fmt.Errorf("failed to bind command parameters: %w", err)
	}

	result, err := r.ExecContext(ctx, cmd.Text, args...)
	if err != nil {
		logCommandFailure(logger, cmd, err)
		return 0, &apperrors.ExecutionError{Operation: "exec", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, &apperrors.ExecutionError{Operation: "rows affected", Err: err}
	}
	return affected, nil
}

func scalarCommand(ctx context.Context, r queryRunner, logger *zap.Logger, cmd sqlgen.Command) (any, error) {
	args, err := namedArgs(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to bind command parameters: %w", err)
	}

	var value any
	if err := r.QueryRowContext(ctx, cmd.Text, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logCommandFailure(logger, cmd, err)
		return nil, &apperrors.ExecutionError{Operation: "scalar", Err: err}
	}
	return value, nil
}

func logCommandFailure(logger *zap.Logger, cmd sqlgen.Command, err error) {
	fields := []zap.Field{
		zap.String("command", logging.SanitizeQuery(cmd.Text)),
		zap.String("error", logging.SanitizeError(err)),
	}
	if n, ok := ErrorNumber(err); ok {
		fields = append(fields, zap.Int32("sql_error_number", n))
	}
	if IsTransient(err) {
		logger.Warn("Command failed with transient error", fields...)
		return
	}
	logger.Error("Command failed", fields...)
}
