package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidName           = errors.New("invalid name")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrUnrecognizedEnumValue = errors.New("unrecognized enum value")
	ErrUnrecognizedResult    = errors.New("unrecognized result")
	ErrIncompatibleSchema    = errors.New("incompatible schema")
	ErrExecutionFailure      = errors.New("execution failure")
)

// InvalidArgument returns an error wrapping ErrInvalidArgument for the named argument.
func InvalidArgument(name, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidArgument, name, reason)
}

// UnrecognizedEnum returns an error wrapping ErrUnrecognizedEnumValue.
func UnrecognizedEnum(kind string, value any) error {
	return fmt.Errorf("%w: %s %v", ErrUnrecognizedEnumValue, kind, value)
}

// IncompatibleSchemaError reports a legacy table that lacks columns the current
// schema version requires. It is never repaired automatically.
type IncompatibleSchemaError struct {
	Table          string
	MissingColumns []string
	// Hints maps a missing column to the closest existing column name, if any.
	Hints map[string]string
}

func (e *IncompatibleSchemaError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "table %s uses a legacy schema; missing columns: %s",
		e.Table, strings.Join(e.MissingColumns, ", "))
	for _, col := range e.MissingColumns {
		if hint, ok := e.Hints[col]; ok {
			fmt.Fprintf(&sb, " (%s: closest existing column is %s)", col, hint)
		}
	}
	sb.WriteString(". Disable the stream, reprocess the container and re-enable the stream")
	return sb.String()
}

// Is allows errors.Is(err, ErrIncompatibleSchema).
func (e *IncompatibleSchemaError) Is(target error) bool {
	return target == ErrIncompatibleSchema
}

// ExecutionError wraps a failure raised by the SQL executor.
type ExecutionError struct {
	Operation string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrExecutionFailure).
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecutionFailure
}
