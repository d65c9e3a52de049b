package sqlgen

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

func TestMainColumns_ByMode(t *testing.T) {
	props := []PropertyColumn{{Property: "FirstName", Column: ColumnDefinition{Name: "FirstName", Type: TypeNVarCharMax, Nullable: true}}}

	sync, err := MainColumns(models.StreamModeSync, props)
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "PersistVersion", "PersistHash", "OriginEntityCode", "EntityType", "Timestamp", "FirstName"},
		columnNames(Definitions(sync)))

	event, err := MainColumns(models.StreamModeEventStream, props)
	require.NoError(t, err)
	defs := Definitions(event)
	assert.Equal(t, []string{"Id", "PersistVersion", "PersistHash", "OriginEntityCode", "EntityType", "Timestamp", "ChangeType", "CorrelationId", "FirstName"},
		columnNames(defs))

	var keys []string
	for _, d := range defs {
		if d.PrimaryKey {
			keys = append(keys, d.Name)
		}
	}
	assert.Equal(t, []string{"Id", "ChangeType", "CorrelationId"}, keys)

	_, err = MainColumns("Batch", props)
	assert.ErrorIs(t, err, apperrors.ErrUnrecognizedEnumValue)
}

func TestMainColumns_Types(t *testing.T) {
	cols, err := MainColumns(models.StreamModeEventStream, nil)
	require.NoError(t, err)

	types := map[string]string{}
	for _, c := range Definitions(cols) {
		types[c.Name] = c.Type
	}
	assert.Equal(t, map[string]string{
		"Id":               "uniqueidentifier",
		"PersistVersion":   "bigint",
		"PersistHash":      "nvarchar(max)",
		"OriginEntityCode": "nvarchar(max)",
		"EntityType":       "nvarchar(450)",
		"Timestamp":        "datetimeoffset",
		"ChangeType":       "nvarchar(50)",
		"CorrelationId":    "uniqueidentifier",
	}, types)
}

func TestMainColumns_ValueExtraction(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	corr := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &models.EntitySnapshot{
		ID:            id,
		PersistInfo:   models.PersistInfo{Version: 7, Hash: "abc"},
		EntityType:    "/Person",
		Timestamp:     ts,
		ChangeType:    models.ChangeTypeAdded,
		CorrelationID: corr,
		Properties:    []models.Property{{Name: "age", Value: 42}},
	}

	props, err := ResolvePropertyColumns(models.StreamModeEventStream,
		[]models.PropertyDefinition{{Name: "age", DataType: models.DataTypeInteger}}, false)
	require.NoError(t, err)
	cols, err := MainColumns(models.StreamModeEventStream, props)
	require.NoError(t, err)

	values := Values(cols, s)
	assert.Equal(t, []any{id, int64(7), "abc", nil, "/Person", ts, "Added", corr, "42"}, values)
}

func TestCodeColumns(t *testing.T) {
	sync, err := CodeColumns(models.StreamModeSync)
	require.NoError(t, err)
	assert.Equal(t, []string{"EntityId", "Code", "IsOriginEntityCode"}, columnNames(Definitions(sync)))

	event, err := CodeColumns(models.StreamModeEventStream)
	require.NoError(t, err)
	defs := Definitions(event)
	assert.Equal(t, []string{"EntityId", "Code", "IsOriginEntityCode", "ChangeType", "CorrelationId"}, columnNames(defs))

	for _, d := range defs {
		assert.False(t, d.PrimaryKey, d.Name)
		assert.Equal(t, d.Name == "EntityId", d.Indexed, d.Name)
	}
}

func TestEdgeColumns(t *testing.T) {
	out, err := EdgeColumns(models.StreamModeSync, models.EdgeDirectionOutgoing)
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "EntityId", "EdgeType", "ToCode"}, columnNames(Definitions(out)))

	in, err := EdgeColumns(models.StreamModeEventStream, models.EdgeDirectionIncoming)
	require.NoError(t, err)
	defs := Definitions(in)
	assert.Equal(t, []string{"Id", "EntityId", "EdgeType", "FromCode", "ChangeType", "CorrelationId"}, columnNames(defs))
	assert.True(t, defs[4].PrimaryKey)
	assert.True(t, defs[5].PrimaryKey)
	assert.True(t, defs[1].Indexed)

	_, err = EdgeColumns(models.StreamModeSync, "Sideways")
	assert.ErrorIs(t, err, apperrors.ErrUnrecognizedEnumValue)
}

func TestEdgePropertyColumns(t *testing.T) {
	sync, err := EdgePropertyColumns(models.StreamModeSync)
	require.NoError(t, err)
	assert.Equal(t, []string{"EdgeId", "KeyName", "EntityId", "Value"}, columnNames(Definitions(sync)))

	event, err := EdgePropertyColumns(models.StreamModeEventStream)
	require.NoError(t, err)
	var keys []string
	for _, d := range Definitions(event) {
		if d.PrimaryKey {
			keys = append(keys, d.Name)
		}
	}
	assert.Equal(t, []string{"EdgeId", "KeyName", "CorrelationId"}, keys)
}

func TestTableColumns_UnknownFamily(t *testing.T) {
	_, err := TableColumns("Attachments", models.StreamModeSync, nil)
	assert.ErrorIs(t, err, apperrors.ErrUnrecognizedEnumValue)
}

func resolvedNames(t *testing.T, mode models.StreamMode, raw ...string) []string {
	t.Helper()
	defs := make([]models.PropertyDefinition, len(raw))
	for i, r := range raw {
		defs[i] = models.PropertyDefinition{Name: r, DataType: models.DataTypeText}
	}
	cols, err := ResolvePropertyColumns(mode, defs, false)
	require.NoError(t, err)
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Column.Name
	}
	return out
}

func TestResolvePropertyColumns_Collisions(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want []string
	}{
		{"sanitized collision", []string{"a-b", "a.b"}, []string{"ab", "ab_1"}},
		{"three way", []string{"a-b", "a.b", "a b"}, []string{"ab", "ab_1", "ab_2"}},
		{"case insensitive", []string{"Name", "name"}, []string{"Name", "name_1"}},
		{"fixed column reserved", []string{"id", "Timestamp"}, []string{"id_1", "Timestamp_1"}},
		{"suffix skips literal property", []string{"a-b", "a.b", "ab_1"}, []string{"ab", "ab_2", "ab_1"}},
		{"duplicate raw names", []string{"City", "City"}, []string{"City"}},
		{"no collision", []string{"FirstName", "LastName"}, []string{"FirstName", "LastName"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolvedNames(t, models.StreamModeSync, tt.raw...))
		})
	}
}

func TestResolvePropertyColumns_RelativeOrderOnly(t *testing.T) {
	a := resolvedNames(t, models.StreamModeSync, "a-b", "x", "a.b")
	b := resolvedNames(t, models.StreamModeSync, "y", "a-b", "z", "a.b")
	assert.Equal(t, []string{"ab", "x", "ab_1"}, a)
	assert.Equal(t, []string{"y", "ab", "z", "ab_1"}, b)
}

func TestResolvePropertyColumns_EventStreamReservesChangeType(t *testing.T) {
	assert.Equal(t, []string{"ChangeType"}, resolvedNames(t, models.StreamModeSync, "ChangeType"))
	assert.Equal(t, []string{"ChangeType_1"}, resolvedNames(t, models.StreamModeEventStream, "ChangeType"))
}

func TestResolvePropertyColumns_InvalidName(t *testing.T) {
	_, err := ResolvePropertyColumns(models.StreamModeSync,
		[]models.PropertyDefinition{{Name: "--"}}, false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidName)
}

func TestPropertySQLType(t *testing.T) {
	assert.Equal(t, TypeNVarCharMax, PropertySQLType(models.DataTypeInteger, false))

	narrow := map[models.PropertyDataType]string{
		models.DataTypeText:     TypeNVarCharMax,
		models.DataTypeInteger:  TypeBigInt,
		models.DataTypeNumber:   TypeFloat,
		models.DataTypeBoolean:  TypeBit,
		models.DataTypeDateTime: TypeDateTimeOffset,
		models.DataTypeGuid:     TypeUniqueIdentifier,
		"Geography":             TypeNVarCharMax,
	}
	for dataType, want := range narrow {
		assert.Equal(t, want, PropertySQLType(dataType, true), dataType)
	}
}

func TestSnapshotProperties_AppendsUndeclared(t *testing.T) {
	declared := []models.PropertyDefinition{{Name: "FirstName", DataType: models.DataTypeText}}
	s := &models.EntitySnapshot{Properties: []models.Property{
		{Name: "Age", Value: 3, DataType: models.DataTypeInteger},
		{Name: "FirstName", Value: "Ada"},
		{Name: "Nickname", Value: "A"},
		{Name: "Age", Value: 4},
	}}

	got := SnapshotProperties(declared, s)
	assert.Equal(t, []models.PropertyDefinition{
		{Name: "FirstName", DataType: models.DataTypeText},
		{Name: "Age", DataType: models.DataTypeInteger},
		{Name: "Nickname", DataType: models.DataTypeText},
	}, got)
	assert.Len(t, declared, 1)
}

func TestResolveSnapshotColumns_StableForUndeclared(t *testing.T) {
	declared := []models.PropertyDefinition{{Name: "ab"}}
	resolve := func(props ...string) map[string]string {
		t.Helper()
		s := &models.EntitySnapshot{}
		for _, p := range props {
			s.Properties = append(s.Properties, models.Property{Name: p, Value: "v"})
		}
		cols, err := ResolveSnapshotColumns(models.StreamModeSync, declared, s, false)
		require.NoError(t, err)
		out := map[string]string{}
		for _, c := range cols {
			out[c.Property] = c.Column.Name
		}
		return out
	}

	alone := resolve("a.b")
	together := resolve("ab_1", "a.b", "Nickname")
	assert.Equal(t, "ab", alone["ab"])
	assert.Equal(t, "ab"+naming.HashSuffix("a.b"), alone["a.b"])
	assert.Equal(t, alone["a.b"], together["a.b"], "column must not depend on the other undeclared properties")
	assert.Equal(t, "ab_1", together["ab_1"])
	assert.Equal(t, "Nickname", together["Nickname"])
}

func TestResolveSnapshotColumns_CollisionsGetHashSuffix(t *testing.T) {
	s := &models.EntitySnapshot{Properties: []models.Property{
		{Name: "Timestamp", Value: "x"},
		{Name: "nick"},
		{Name: "NICK"},
	}}
	cols, err := ResolveSnapshotColumns(models.StreamModeSync, nil, s, false)
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "Timestamp"+naming.HashSuffix("Timestamp"), cols[0].Column.Name)
	assert.Equal(t, "nick", cols[1].Column.Name)
	assert.Equal(t, "NICK"+naming.HashSuffix("NICK"), cols[2].Column.Name)
}

func TestConvertPropertyValue(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	tests := []struct {
		name    string
		value   any
		sqlType string
		want    any
	}{
		{"nil", nil, TypeNVarCharMax, nil},
		{"text passthrough", "hello", TypeNVarCharMax, "hello"},
		{"int as text", 42, TypeNVarCharMax, "42"},
		{"float as text", 1.5, TypeNVarCharMax, "1.5"},
		{"bool as text", true, TypeNVarCharMax, "true"},
		{"time as text", ts, TypeNVarCharMax, "2024-03-05T14:30:00Z"},
		{"json number to bigint", json.Number("12"), TypeBigInt, int64(12)},
		{"whole float to bigint", float64(3), TypeBigInt, int64(3)},
		{"fraction stays text", 3.25, TypeBigInt, "3.25"},
		{"string to float", "2.5", TypeFloat, 2.5},
		{"string to bit", "true", TypeBit, true},
		{"string to datetimeoffset", "2024-03-05T14:30:00Z", TypeDateTimeOffset, ts},
		{"string to guid", id.String(), TypeUniqueIdentifier, id},
		{"bad guid stays text", "not-a-guid", TypeUniqueIdentifier, "not-a-guid"},
		{"map as json", map[string]any{"a": 1}, TypeNVarCharMax, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convertPropertyValue(tt.value, tt.sqlType))
		})
	}
}
