package mssql

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/sqlgen"
)

var (
	uniqueIdentifierType = reflect.TypeOf(mssql.UniqueIdentifier{})
	int64Type            = reflect.TypeOf(int64(0))
	float64Type          = reflect.TypeOf(float64(0))
	boolType             = reflect.TypeOf(false)
	timeType             = reflect.TypeOf(time.Time{})
	stringType           = reflect.TypeOf("")
)

// namedArgs converts command parameters to driver arguments.
func namedArgs(cmd sqlgen.Command) ([]any, error) {
	args := make([]any, 0, len(cmd.Parameters))
	for _, p := range cmd.Parameters {
		value, err := parameterValue(p)
		if err != nil {
			return nil, fmt.Errorf("parameter @%s: %w", p.Name, err)
		}
		args = append(args, sql.Named(p.Name, value))
	}
	return args, nil
}

func parameterValue(p sqlgen.Parameter) (any, error) {
	if p.Type == sqlgen.TypeStructured {
		tvp, ok := p.Value.(sqlgen.TableValuedParameter)
		if !ok {
			return nil, apperrors.InvalidArgument("value", fmt.Sprintf("must be a table-valued parameter, got %T", p.Value))
		}
		return TableValue(tvp)
	}
	if p.Value == nil {
		return nil, nil
	}
	if p.Type == sqlgen.TypeUniqueIdentifier {
		// Strings that failed property conversion are passed through for the server to cast.
		if id, ok := p.Value.(uuid.UUID); ok {
			return mssql.UniqueIdentifier(id), nil
		}
	}
	return p.Value, nil
}

// TableValue converts a table-valued parameter to the driver's TVP form: a
// slice of generated structs whose fields follow the custom type's column order.
// Nullable columns map to pointer fields.
func TableValue(tvp sqlgen.TableValuedParameter) (mssql.TVP, error) {
	if tvp.TypeName.IsZero() {
		return mssql.TVP{}, apperrors.InvalidArgument("type name", "is required")
	}

	fields := make([]reflect.StructField, len(tvp.Columns))
	for i, col := range tvp.Columns {
		goType, err := columnGoType(col)
		if err != nil {
			return mssql.TVP{}, err
		}
		fields[i] = reflect.StructField{
			Name: fmt.Sprintf("C%d", i),
			Type: goType,
		}
	}
	rowType := reflect.StructOf(fields)

	rows := reflect.MakeSlice(reflect.SliceOf(rowType), 0, len(tvp.Rows))
	for r, values := range tvp.Rows {
		if len(values) != len(tvp.Columns) {
			return mssql.TVP{}, apperrors.InvalidArgument("row", fmt.Sprintf("%d has %d values for %d columns", r, len(values), len(tvp.Columns)))
		}
		row := reflect.New(rowType).Elem()
		for i, col := range tvp.Columns {
			if err := setField(row.Field(i), col, values[i]); err != nil {
				return mssql.TVP{}, fmt.Errorf("row %d column %s: %w", r, col.Name, err)
			}
		}
		rows = reflect.Append(rows, row)
	}

	return mssql.TVP{
		TypeName: tvp.TypeName.String(),
		Value:    rows.Interface(),
	}, nil
}

func columnGoType(col sqlgen.ColumnDefinition) (reflect.Type, error) {
	base, err := baseGoType(col.Type)
	if err != nil {
		return nil, err
	}
	if col.Nullable {
		return reflect.PointerTo(base), nil
	}
	return base, nil
}

func baseGoType(sqlType string) (reflect.Type, error) {
	switch sqlType {
	case sqlgen.TypeUniqueIdentifier:
		return uniqueIdentifierType, nil
	case sqlgen.TypeBigInt:
		return int64Type, nil
	case sqlgen.TypeFloat:
		return float64Type, nil
	case sqlgen.TypeBit:
		return boolType, nil
	case sqlgen.TypeDateTimeOffset:
		return timeType, nil
	}
	if strings.HasPrefix(sqlType, "nvarchar") {
		return stringType, nil
	}
	return nil, apperrors.UnrecognizedEnum("column type", sqlType)
}

func setField(field reflect.Value, col sqlgen.ColumnDefinition, value any) error {
	if value == nil {
		if !col.Nullable {
			return apperrors.InvalidArgument(col.Name, "is not nullable")
		}
		return nil
	}

	base, err := baseGoType(col.Type)
	if err != nil {
		return err
	}
	converted, err := convertValue(value, base)
	if err != nil {
		return err
	}

	if col.Nullable {
		ptr := reflect.New(base)
		ptr.Elem().Set(converted)
		field.Set(ptr)
		return nil
	}
	field.Set(converted)
	return nil
}

func convertValue(value any, target reflect.Type) (reflect.Value, error) {
	switch target {
	case uniqueIdentifierType:
		switch v := value.(type) {
		case uuid.UUID:
			return reflect.ValueOf(mssql.UniqueIdentifier(v)), nil
		case mssql.UniqueIdentifier:
			return reflect.ValueOf(v), nil
		case string:
			id, err := uuid.Parse(v)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("%w: %q is not a uuid", apperrors.ErrInvalidArgument, v)
			}
			return reflect.ValueOf(mssql.UniqueIdentifier(id)), nil
		}
	case stringType:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.String {
			return reflect.ValueOf(rv.String()), nil
		}
	case timeType:
		if t, ok := value.(time.Time); ok {
			return reflect.ValueOf(t), nil
		}
	default:
		rv := reflect.ValueOf(value)
		if rv.CanConvert(target) && sameKindFamily(rv.Kind(), target.Kind()) {
			return rv.Convert(target), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot use %T as %s", apperrors.ErrInvalidArgument, value, target)
}

// sameKindFamily rejects lossy conversions such as int to bool or float to string.
func sameKindFamily(from, to reflect.Kind) bool {
	switch to {
	case reflect.Bool:
		return from == reflect.Bool
	case reflect.Int64:
		return from >= reflect.Int && from <= reflect.Uint64
	case reflect.Float64:
		return (from >= reflect.Int && from <= reflect.Uint64) || from == reflect.Float32 || from == reflect.Float64
	}
	return false
}
