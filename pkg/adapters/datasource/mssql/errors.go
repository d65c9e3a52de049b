package mssql

import (
	"errors"
)

// SQL Server error numbers the executor treats specially.
const (
	ErrNumberDeadlockVictim = 1205
	ErrNumberLockTimeout    = 1222
)

// transientErrorNumbers are failures that succeed when the batch is retried.
// The 4xxxx and 49xxx numbers are Azure SQL throttling and failover errors.
var transientErrorNumbers = map[int32]bool{
	ErrNumberDeadlockVictim: true,
	ErrNumberLockTimeout:    true,
	10928:                   true,
	10929:                   true,
	40197:                   true,
	40501:                   true,
	40613:                   true,
	49918:                   true,
	49919:                   true,
	49920:                   true,
}

type numberedError interface {
	SQLErrorNumber() int32
}

// ErrorNumber returns the SQL Server error number carried by err, if any.
func ErrorNumber(err error) (int32, bool) {
	var numbered numberedError
	if errors.As(err, &numbered) {
		return numbered.SQLErrorNumber(), true
	}
	return 0, false
}

// IsDeadlock reports whether err chose this session as a deadlock victim.
func IsDeadlock(err error) bool {
	n, ok := ErrorNumber(err)
	return ok && n == ErrNumberDeadlockVictim
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	n, ok := ErrorNumber(err)
	return ok && transientErrorNumbers[n]
}
