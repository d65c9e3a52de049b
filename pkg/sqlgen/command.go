// Package sqlgen generates SQL Server command text and parameters that project
// entity snapshots onto a container's tables.
//
// Every builder is a pure function of (target, snapshot) to commands: nothing
// is read from the database, cached or shared between calls, so builders are
// safe for concurrent use without synchronization.
package sqlgen

import (
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// SQL types used by the column catalog.
const (
	TypeUniqueIdentifier = "uniqueidentifier"
	TypeBigInt           = "bigint"
	TypeFloat            = "float"
	TypeBit              = "bit"
	TypeDateTimeOffset   = "datetimeoffset"
	TypeNVarCharMax      = "nvarchar(max)"
	TypeNVarChar450      = "nvarchar(450)"
	TypeNVarChar50       = "nvarchar(50)"

	// TypeStructured marks a table-valued parameter.
	TypeStructured = "structured"
)

// Command is one batch of SQL text with its ordered parameters.
type Command struct {
	Text       string
	Parameters []Parameter
}

// Parameter is a named, typed command parameter. Name excludes the @ prefix.
type Parameter struct {
	Name  string
	Type  string
	Value any
}

// TableValuedParameter carries a whole row set in one parameter. TypeName refers
// to a custom type previously created with BuildCreateCustomType.
type TableValuedParameter struct {
	TypeName naming.TableName
	Columns  []ColumnDefinition
	Rows     [][]any
}

// Param returns the parameter with the given name.
func (c Command) Param(name string) (Parameter, bool) {
	for _, p := range c.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}
