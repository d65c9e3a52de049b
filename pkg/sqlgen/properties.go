package sqlgen

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// PropertyColumn maps one raw property name to its main table column.
type PropertyColumn struct {
	Property string
	Column   ColumnDefinition
}

func (p PropertyColumn) extract(s *models.EntitySnapshot) any {
	for _, prop := range s.Properties {
		if prop.Name == p.Property {
			return convertPropertyValue(prop.Value, p.Column.Type)
		}
	}
	return nil
}

// PropertySQLType returns the column type of a declared property. Without
// narrow mapping every property is stored as nvarchar(max).
func PropertySQLType(dataType models.PropertyDataType, narrow bool) string {
	if !narrow {
		return TypeNVarCharMax
	}
	switch dataType {
	case models.DataTypeInteger:
		return TypeBigInt
	case models.DataTypeNumber:
		return TypeFloat
	case models.DataTypeBoolean:
		return TypeBit
	case models.DataTypeDateTime:
		return TypeDateTimeOffset
	case models.DataTypeGuid:
		return TypeUniqueIdentifier
	default:
		return TypeNVarCharMax
	}
}

// ResolvePropertyColumns assigns a distinct column name to every property.
//
// Names are sanitized first. SQL Server compares identifiers case-insensitively,
// so a name equal to a fixed column or to an earlier property ignoring case gets
// the smallest numeric suffix _1, _2... that is neither taken nor the sanitized
// name of any other property. The outcome depends only on the relative order of
// colliding names. Duplicate raw names keep their first declaration.
func ResolvePropertyColumns(mode models.StreamMode, properties []models.PropertyDefinition, narrow bool) ([]PropertyColumn, error) {
	fixed, err := MainFixedColumnNames(mode)
	if err != nil {
		return nil, err
	}

	used := make(map[string]struct{}, len(fixed)+len(properties))
	for _, name := range fixed {
		used[strings.ToLower(name)] = struct{}{}
	}

	seen := make(map[string]struct{}, len(properties))
	bases := make([]string, 0, len(properties))
	defs := make([]models.PropertyDefinition, 0, len(properties))
	reserved := make(map[string]struct{}, len(properties))
	for _, p := range properties {
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}

		base, err := naming.Sanitize(p.Name)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", p.Name, err)
		}
		bases = append(bases, base)
		defs = append(defs, p)
		reserved[strings.ToLower(base)] = struct{}{}
	}

	next := make(map[string]int)
	columns := make([]PropertyColumn, 0, len(defs))
	for i, p := range defs {
		name := bases[i]
		key := strings.ToLower(name)
		if _, taken := used[key]; taken {
			n := next[key]
			for {
				n++
				candidate, err := naming.WithSuffix(bases[i], "_"+strconv.Itoa(n))
				if err != nil {
					return nil, fmt.Errorf("property %q: %w", p.Name, err)
				}
				lc := strings.ToLower(candidate)
				_, isUsed := used[lc]
				_, isReserved := reserved[lc]
				if !isUsed && !isReserved {
					name = candidate
					break
				}
			}
			next[key] = n
		}
		used[strings.ToLower(name)] = struct{}{}

		columns = append(columns, PropertyColumn{
			Property: p.Name,
			Column: ColumnDefinition{
				Name:     name,
				Type:     PropertySQLType(p.DataType, narrow),
				Nullable: true,
			},
		})
	}
	return columns, nil
}

// ResolveSnapshotColumns resolves the declared properties like
// ResolvePropertyColumns and appends a column for every undeclared snapshot
// property. An undeclared property keeps its own name when sanitizing leaves it
// unchanged and no earlier column has it; otherwise its sanitized name gets
// the property's HashSuffix. Its column depends on its name alone, never on
// the other undeclared properties of the snapshot, except that letter-case
// variants arriving together are told apart by the suffix.
func ResolveSnapshotColumns(mode models.StreamMode, declared []models.PropertyDefinition, s *models.EntitySnapshot, narrow bool) ([]PropertyColumn, error) {
	columns, err := ResolvePropertyColumns(mode, declared, narrow)
	if err != nil {
		return nil, err
	}
	undeclared := SnapshotProperties(declared, s)[len(declared):]
	if len(undeclared) == 0 {
		return columns, nil
	}

	fixed, err := MainFixedColumnNames(mode)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, len(fixed)+len(columns)+len(undeclared))
	for _, name := range fixed {
		taken[strings.ToLower(name)] = struct{}{}
	}
	for _, c := range columns {
		taken[strings.ToLower(c.Column.Name)] = struct{}{}
	}

	for _, p := range undeclared {
		base, err := naming.Sanitize(p.Name)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", p.Name, err)
		}
		name := base
		if _, used := taken[strings.ToLower(base)]; used || base != p.Name {
			name, err = naming.WithSuffix(base, naming.HashSuffix(p.Name))
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", p.Name, err)
			}
			if _, used := taken[strings.ToLower(name)]; used {
				return nil, fmt.Errorf("%w: property %q collides with column %s", apperrors.ErrInvalidName, p.Name, name)
			}
		}
		taken[strings.ToLower(name)] = struct{}{}
		columns = append(columns, PropertyColumn{
			Property: p.Name,
			Column: ColumnDefinition{
				Name:     name,
				Type:     PropertySQLType(p.DataType, narrow),
				Nullable: true,
			},
		})
	}
	return columns, nil
}

// SnapshotProperties returns the declared properties followed by any snapshot
// property not declared, in the order it appears.
func SnapshotProperties(declared []models.PropertyDefinition, snapshot *models.EntitySnapshot) []models.PropertyDefinition {
	if snapshot == nil || len(snapshot.Properties) == 0 {
		return declared
	}
	known := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		known[d.Name] = struct{}{}
	}
	out := append([]models.PropertyDefinition(nil), declared...)
	for _, p := range snapshot.Properties {
		if _, ok := known[p.Name]; ok {
			continue
		}
		known[p.Name] = struct{}{}
		dataType := p.DataType
		if dataType == "" {
			dataType = models.DataTypeText
		}
		out = append(out, models.PropertyDefinition{Name: p.Name, DataType: dataType})
	}
	return out
}

// convertPropertyValue shapes a decoded property value for its column type.
// Values that cannot be converted are passed on as text and left to the server.
func convertPropertyValue(value any, sqlType string) any {
	if value == nil {
		return nil
	}
	switch sqlType {
	case TypeBigInt:
		if n, ok := toInt64(value); ok {
			return n
		}
	case TypeFloat:
		if f, ok := toFloat64(value); ok {
			return f
		}
	case TypeBit:
		switch v := value.(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	case TypeDateTimeOffset:
		switch v := value.(type) {
		case time.Time:
			return v
		case string:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return t
			}
		}
	case TypeUniqueIdentifier:
		switch v := value.(type) {
		case uuid.UUID:
			return v
		case string:
			if id, err := uuid.Parse(v); err == nil {
				return id
			}
		}
	}
	return stringify(value)
}

func stringify(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case uuid.UUID:
		return v.String()
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// validateMode rejects unknown stream modes.
func validateMode(mode models.StreamMode) error {
	if !mode.IsValid() {
		return apperrors.UnrecognizedEnum("stream mode", mode)
	}
	return nil
}
