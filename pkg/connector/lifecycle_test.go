package connector

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/sqlgen"
)

func personContainer() *models.CreateContainerDescriptor {
	return &models.CreateContainerDescriptor{
		Name:       "Person",
		Mode:       models.StreamModeSync,
		Properties: []models.PropertyDefinition{{Name: "FirstName", DataType: models.DataTypeText}},
	}
}

func expectTableExists(mock sqlmock.Sqlmock, name string, ok bool) {
	v := 0
	if ok {
		v = 1
	}
	mock.ExpectQuery(regexp.QuoteMeta("CASE WHEN OBJECT_ID(@Name, N'U') IS NULL")).
		WithArgs(sql.Named("Name", name)).
		WillReturnRows(sqlmock.NewRows([]string{"found"}).AddRow(v))
}

func expectTypeExists(mock sqlmock.Sqlmock, name string, ok bool) {
	v := 0
	if ok {
		v = 1
	}
	mock.ExpectQuery(regexp.QuoteMeta("CASE WHEN TYPE_ID(@Name) IS NULL")).
		WithArgs(sql.Named("Name", name)).
		WillReturnRows(sqlmock.NewRows([]string{"found"}).AddRow(v))
}

func expectConstraints(mock sqlmock.Sqlmock, name string, constraints ...string) {
	rows := sqlmock.NewRows([]string{"name"})
	for _, c := range constraints {
		rows.AddRow(c)
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM sys.objects o")).
		WithArgs(sql.Named("Name", name)).
		WillReturnRows(rows)
}

func expectRename(mock sqlmock.Sqlmock, object, newName, objectType string) {
	mock.ExpectExec(regexp.QuoteMeta("EXEC sp_rename")).
		WithArgs(sql.Named("ObjName", object), sql.Named("NewName", newName), sql.Named("ObjType", objectType)).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

var bulkSuffixes = []string{"Codes", "OutgoingEdges", "IncomingEdges", "OutgoingEdgeProperties", "IncomingEdgeProperties"}

func TestCreateContainer(t *testing.T) {
	exec := newFakeExecutor(t)
	repo := &fakeRepository{}
	c := newTestConnector(t, exec, WithContainerRepository(repo))

	err := c.CreateContainer(context.Background(), personContainer())
	require.NoError(t, err)

	g, err := sqlgen.NewGenerator(sqlgen.DefaultBuilders(sqlgen.Options{}))
	require.NoError(t, err)
	target, err := sqlgen.TargetForCreateContainer(personContainer(), DefaultSchema)
	require.NoError(t, err)
	expected, err := g.CreateContainer(target)
	require.NoError(t, err)

	assert.Equal(t, texts(expected), texts(exec.executed))
	assert.Equal(t, 1, exec.transactions)
	require.Len(t, repo.upserts, 1)
	assert.Equal(t, "Person", repo.upserts[0].Name)
	assert.Equal(t, "dbo", repo.upserts[0].Schema)
	assert.Equal(t, models.ContainerStatusActive, repo.upserts[0].Status)
	assert.Equal(t, personContainer().Properties, repo.upserts[0].Properties)
}

func TestCreateContainer_NarrowTypes(t *testing.T) {
	exec := newFakeExecutor(t)
	c, err := New(exec, Config{Schema: "sink", NarrowTypes: true})
	require.NoError(t, err)

	desc := personContainer()
	desc.Properties = append(desc.Properties, models.PropertyDefinition{Name: "Age", DataType: models.DataTypeInteger})
	require.NoError(t, c.CreateContainer(context.Background(), desc))

	var createMain string
	for _, cmd := range exec.executed {
		if regexp.MustCompile(`CREATE TABLE \[sink\]\.\[Person\] \(`).MatchString(cmd.Text) {
			createMain = cmd.Text
		}
	}
	require.NotEmpty(t, createMain)
	assert.Contains(t, createMain, "[Age] bigint NULL")
}

func TestCreateContainer_InvalidMode(t *testing.T) {
	exec := newFakeExecutor(t)
	c := newTestConnector(t, exec)

	desc := personContainer()
	desc.Mode = "Batch"
	err := c.CreateContainer(context.Background(), desc)
	assert.ErrorIs(t, err, apperrors.ErrUnrecognizedEnumValue)
	assert.Zero(t, exec.transactions)
}

func TestEmptyContainer(t *testing.T) {
	exec := newFakeExecutor(t)
	c := newTestConnector(t, exec)

	require.NoError(t, c.EmptyContainer(context.Background(), personContainer()))
	require.Len(t, exec.executed, 6)
	assert.Contains(t, exec.executed[0].Text, "DELETE FROM [dbo].[PersonIncomingEdgeProperties];")
	assert.Contains(t, exec.executed[5].Text, "DELETE FROM [dbo].[Person];")
}

func TestRemoveContainer(t *testing.T) {
	exec := newFakeExecutor(t)
	repo := &fakeRepository{}
	c := newTestConnector(t, exec, WithContainerRepository(repo))

	require.NoError(t, c.RemoveContainer(context.Background(), personContainer()))
	assert.Len(t, exec.executed, 11)
	assert.Equal(t, "DROP TABLE IF EXISTS [dbo].[Person];", exec.executed[5].Text)
	assert.Equal(t, models.ContainerStatusRemoved, repo.statuses["Person"])
}

func TestArchiveContainer(t *testing.T) {
	exec := newFakeExecutor(t)
	repo := &fakeRepository{}
	c := newTestConnector(t, exec, WithContainerRepository(repo))
	mock := exec.mock

	expectTableExists(mock, "[dbo].[Person]", true)
	expectTableExists(mock, "[dbo].[Person]", true)
	expectTableExists(mock, "[dbo].[Person_20250102030405]", false)
	expectRename(mock, "[dbo].[Person]", "Person_20250102030405", "OBJECT")
	expectConstraints(mock, "[dbo].[Person_20250102030405]", "PK_Person_Id")
	expectRename(mock, "[dbo].[PK_Person_Id]", "PK_Person_Id_20250102030405", "OBJECT")
	expectConstraints(mock, "[dbo].[Person_20250102030405]", "PK_Person_Id_20250102030405")
	for _, suffix := range bulkSuffixes {
		expectTableExists(mock, "[dbo].[Person"+suffix+"]", false)
	}
	expectTypeExists(mock, "[dbo].[PersonCodesType]", true)
	expectTypeExists(mock, "[dbo].[PersonCodesType_20250102030405]", false)
	expectRename(mock, "[dbo].[PersonCodesType]", "PersonCodesType_20250102030405", "USERDATATYPE")
	for _, suffix := range bulkSuffixes[1:] {
		expectTypeExists(mock, "[dbo].[Person"+suffix+"Type]", false)
	}

	archived, err := c.ArchiveContainer(context.Background(), personContainer())
	require.NoError(t, err)
	assert.Equal(t, []string{"[dbo].[Person_20250102030405]"}, archived)
	assert.Equal(t, models.ContainerStatusArchived, repo.statuses["Person"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenameContainer(t *testing.T) {
	exec := newFakeExecutor(t)
	repo := &fakeRepository{}
	c := newTestConnector(t, exec, WithContainerRepository(repo))
	mock := exec.mock

	expectTableExists(mock, "[dbo].[Person]", true)
	expectTableExists(mock, "[dbo].[Person]", true)
	expectTableExists(mock, "[dbo].[Customer]", false)
	expectRename(mock, "[dbo].[Person]", "Customer", "OBJECT")
	expectConstraints(mock, "[dbo].[Customer]", "PK_Person_Id")
	expectRename(mock, "[dbo].[PK_Person_Id]", "PK_Customer_Id", "OBJECT")
	expectConstraints(mock, "[dbo].[Customer]", "PK_Customer_Id")

	expectTableExists(mock, "[dbo].[PersonCodes]", true)
	expectTableExists(mock, "[dbo].[PersonCodes]", true)
	expectTableExists(mock, "[dbo].[CustomerCodes]", false)
	expectRename(mock, "[dbo].[PersonCodes]", "CustomerCodes", "OBJECT")
	expectConstraints(mock, "[dbo].[CustomerCodes]")
	expectTypeExists(mock, "[dbo].[PersonCodesType]", true)
	expectTypeExists(mock, "[dbo].[CustomerCodesType]", false)
	expectRename(mock, "[dbo].[PersonCodesType]", "CustomerCodesType", "USERDATATYPE")

	for _, suffix := range bulkSuffixes[1:] {
		expectTableExists(mock, "[dbo].[Person"+suffix+"]", false)
	}

	err := c.RenameContainer(context.Background(), personContainer(), "Customer")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, [][2]string{{"Person", "Customer"}}, repo.renames)
	require.Len(t, repo.upserts, 1, "unregistered containers are recorded under the new name")
	assert.Equal(t, "Customer", repo.upserts[0].Name)
}

func TestRenameContainer_SameNameIsNoop(t *testing.T) {
	exec := newFakeExecutor(t)
	c := newTestConnector(t, exec)

	require.NoError(t, c.RenameContainer(context.Background(), personContainer(), "Person"))
	assert.Zero(t, exec.transactions)
}

func TestVerifyExistingContainer_CreatesMissingTypes(t *testing.T) {
	exec := newFakeExecutor(t)
	c := newTestConnector(t, exec)
	mock := exec.mock

	// Added columns: neither table exists yet.
	expectTableExists(mock, "[dbo].[Person]", false)
	expectTableExists(mock, "[dbo].[PersonCodes]", false)
	for _, suffix := range bulkSuffixes {
		expectTypeExists(mock, "[dbo].[Person"+suffix+"Type]", false)
		mock.ExpectExec(regexp.QuoteMeta("CREATE TYPE [dbo].[Person" + suffix + "Type] AS TABLE (")).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	expectTableExists(mock, "[dbo].[Person]", false)
	for _, suffix := range bulkSuffixes {
		expectTableExists(mock, "[dbo].[Person"+suffix+"]", false)
	}

	report, err := c.VerifyExistingContainer(context.Background(), personStream(models.StreamModeSync))
	require.NoError(t, err)
	assert.Empty(t, report.AddedColumns)
	assert.Empty(t, report.ArchivedTypes)
	assert.Empty(t, report.Incompatible)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListContainers_WithoutRepository(t *testing.T) {
	c := newTestConnector(t, newFakeExecutor(t))
	records, err := c.ListContainers(context.Background())
	require.NoError(t, err)
	assert.Nil(t, records)
}

func expectArchiveCandidates(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM sys.tables t")).
		WithArgs(sql.Named("Schema", "dbo")).
		WillReturnRows(sqlmock.NewRows([]string{"name", "kind"}).
			AddRow("PersonCodesType_20241201000000", "TT").
			AddRow("Person_20241201000000", "U").
			AddRow("Person_20250102000000", "U").
			AddRow("Person", "U"))
}

func TestPurgeArchives(t *testing.T) {
	exec := newFakeExecutor(t)
	c := newTestConnector(t, exec)
	mock := exec.mock

	expectArchiveCandidates(mock)
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS [dbo].[Person_20241201000000];")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DROP TYPE IF EXISTS [dbo].[PersonCodesType_20241201000000];")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	purged, err := c.PurgeArchives(context.Background(), 24*time.Hour, false)
	require.NoError(t, err)
	require.Len(t, purged, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeArchives_DryRun(t *testing.T) {
	exec := newFakeExecutor(t)
	c := newTestConnector(t, exec)
	mock := exec.mock

	expectArchiveCandidates(mock)

	purged, err := c.PurgeArchives(context.Background(), 24*time.Hour, true)
	require.NoError(t, err)
	require.Len(t, purged, 2)
	assert.Equal(t, "[dbo].[PersonCodesType_20241201000000]", purged[0].Name.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeArchives_RejectsNegativeAge(t *testing.T) {
	c := newTestConnector(t, newFakeExecutor(t))
	_, err := c.PurgeArchives(context.Background(), -time.Hour, true)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}
