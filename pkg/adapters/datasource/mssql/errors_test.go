package mssql

import (
	"errors"
	"fmt"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
)

func TestIsDeadlock(t *testing.T) {
	deadlock := mssql.Error{Number: ErrNumberDeadlockVictim, Message: "Transaction was deadlocked"}

	assert.True(t, IsDeadlock(deadlock))
	assert.True(t, IsDeadlock(&apperrors.ExecutionError{Operation: "exec", Err: deadlock}))
	assert.True(t, IsDeadlock(fmt.Errorf("store entity: %w", &apperrors.ExecutionError{Operation: "exec", Err: deadlock})))

	assert.False(t, IsDeadlock(mssql.Error{Number: 2627, Message: "Violation of PRIMARY KEY constraint"}))
	assert.False(t, IsDeadlock(errors.New("deadlock")))
	assert.False(t, IsDeadlock(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(mssql.Error{Number: ErrNumberLockTimeout}))
	assert.True(t, IsTransient(mssql.Error{Number: 40613}))
	assert.False(t, IsTransient(mssql.Error{Number: 208}))

	n, ok := ErrorNumber(fmt.Errorf("wrapped: %w", mssql.Error{Number: 40501}))
	assert.True(t, ok)
	assert.Equal(t, int32(40501), n)
}
