package naming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
)

func TestForContainer_NameFamily(t *testing.T) {
	names, err := ForContainer("Person", "")
	require.NoError(t, err)

	assert.Equal(t, "[dbo].[Person]", names.Main.String())
	assert.Equal(t, "[dbo].[PersonCodes]", names.Codes.String())
	assert.Equal(t, "[dbo].[PersonOutgoingEdges]", names.OutgoingEdges.String())
	assert.Equal(t, "[dbo].[PersonIncomingEdges]", names.IncomingEdges.String())
	assert.Equal(t, "[dbo].[PersonOutgoingEdgeProperties]", names.OutgoingEdgeProperties.String())
	assert.Equal(t, "[dbo].[PersonIncomingEdgeProperties]", names.IncomingEdgeProperties.String())

	codesType, err := CustomType(names.Codes)
	require.NoError(t, err)
	assert.Equal(t, "[dbo].[PersonCodesType]", codesType.String())
	assert.Equal(t, "N'[dbo].[PersonCodesType]'", codesType.Literal())
}

func TestNaming_EntryPointsAgree(t *testing.T) {
	containers := []string{"Person", "sales.order-lines", "2024 Customers", "Ünïcödé"}
	schemas := []string{"", "dbo", "export-area"}

	for _, container := range containers {
		for _, schema := range schemas {
			raw, err := ForContainer(container, schema)
			require.NoError(t, err)

			fromStream, err := ForStream(&models.StreamDescriptor{ContainerName: container, Mode: models.StreamModeSync}, schema)
			require.NoError(t, err)

			fromCreate, err := ForCreateContainer(&models.CreateContainerDescriptor{Name: container}, schema)
			require.NoError(t, err)

			main, err := MainTable(container, schema)
			require.NoError(t, err)

			for i, table := range raw.All() {
				assert.True(t, table.Equal(fromStream.All()[i]), "stream name differs for %q/%q", container, schema)
				assert.True(t, table.Equal(fromCreate.All()[i]), "create name differs for %q/%q", container, schema)
			}
			assert.Equal(t, main.String(), raw.Main.String())
		}
	}
}

func TestNaming_InvalidInput(t *testing.T) {
	_, err := MainTable("", "dbo")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = CodeTable("---", "dbo")
	assert.ErrorIs(t, err, apperrors.ErrInvalidName)

	_, err = EdgesTable("Person", "dbo", models.EdgeDirection("Sideways"))
	assert.ErrorIs(t, err, apperrors.ErrUnrecognizedEnumValue)

	_, err = ForStream(nil, "dbo")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestTableName_ByFamily(t *testing.T) {
	names, err := ForContainer("Person", "export")
	require.NoError(t, err)

	for i, family := range models.TableFamilies {
		table, err := names.ByFamily(family)
		require.NoError(t, err)
		assert.True(t, table.Equal(names.All()[i]))
		assert.Equal(t, "export", table.Schema())
	}

	_, err = names.ByFamily(models.TableFamily("Unknown"))
	assert.ErrorIs(t, err, apperrors.ErrUnrecognizedEnumValue)
}

func TestTableName_MemoizedStringIsShared(t *testing.T) {
	table, err := NewTableName("dbo", "Person")
	require.NoError(t, err)

	copied := table
	assert.Equal(t, "[dbo].[Person]", table.String())
	assert.Equal(t, table.String(), copied.String())

	var zero TableName
	assert.True(t, zero.IsZero())
	assert.Equal(t, "[].[]", zero.String())
}

func TestTableName_Archived(t *testing.T) {
	table, err := NewTableName("dbo", "PersonCodesType")
	require.NoError(t, err)

	archived, err := table.Archived(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "[dbo].[PersonCodesType_20250102030405]", archived.String())
}
