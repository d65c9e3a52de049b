package repositories

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
)

var containerColumns = []string{"SchemaName", "Name", "Mode", "Properties", "Status", "RenamedFrom", "CreatedAt", "UpdatedAt"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestContainerRepository_Upsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewContainerRepository()

	mock.ExpectExec(regexp.QuoteMeta("MERGE [dbo].[GraphSinkContainers] WITH (HOLDLOCK)")).
		WithArgs(
			sql.Named("SchemaName", "dbo"),
			sql.Named("Name", "Person"),
			sql.Named("Mode", "Sync"),
			sql.Named("Properties", `[{"name":"FirstName","data_type":"Text"}]`),
			sql.Named("Status", "active"),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), db, &models.ContainerRecord{
		Schema:     "dbo",
		Name:       "Person",
		Mode:       models.StreamModeSync,
		Properties: []models.PropertyDefinition{{Name: "FirstName", DataType: models.DataTypeText}},
	})
	require.NoError(t, err)
}

func TestContainerRepository_UpsertWithoutProperties(t *testing.T) {
	db, mock := newMock(t)
	repo := NewContainerRepository()

	mock.ExpectExec(regexp.QuoteMeta("MERGE [dbo].[GraphSinkContainers]")).
		WithArgs(
			sql.Named("SchemaName", "dbo"),
			sql.Named("Name", "Events"),
			sql.Named("Mode", "EventStream"),
			sql.Named("Properties", nil),
			sql.Named("Status", "archived"),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), db, &models.ContainerRecord{
		Schema: "dbo",
		Name:   "Events",
		Mode:   models.StreamModeEventStream,
		Status: models.ContainerStatusArchived,
	})
	require.NoError(t, err)
}

func TestContainerRepository_UpsertNil(t *testing.T) {
	db, _ := newMock(t)
	err := NewContainerRepository().Upsert(context.Background(), db, nil)
	require.Error(t, err)
}

func TestContainerRepository_Rename(t *testing.T) {
	db, mock := newMock(t)
	repo := NewContainerRepository()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE [dbo].[GraphSinkContainers]")).
		WithArgs(sql.Named("NewName", "People"), sql.Named("Name", "Person"), sql.Named("SchemaName", "dbo")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE [dbo].[GraphSinkContainers]")).
		WithArgs(sql.Named("NewName", "B"), sql.Named("Name", "A"), sql.Named("SchemaName", "dbo")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	renamed, err := repo.Rename(context.Background(), db, "dbo", "Person", "People")
	require.NoError(t, err)
	assert.True(t, renamed)

	renamed, err = repo.Rename(context.Background(), db, "dbo", "A", "B")
	require.NoError(t, err)
	assert.False(t, renamed)
}

func TestContainerRepository_SetStatusError(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("SET [Status] = @Status")).
		WillReturnError(errors.New("connection reset"))

	err := NewContainerRepository().SetStatus(context.Background(), db, "dbo", "Person", models.ContainerStatusRemoved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set status of container dbo.Person")
}

func TestContainerRepository_Get(t *testing.T) {
	db, mock := newMock(t)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM [dbo].[GraphSinkContainers]")).
		WithArgs(sql.Named("SchemaName", "dbo"), sql.Named("Name", "People")).
		WillReturnRows(sqlmock.NewRows(containerColumns).
			AddRow("dbo", "People", "Sync", `[{"name":"Age","data_type":"Integer"}]`, "active", "Person", created, created))

	rec, err := NewContainerRepository().Get(context.Background(), db, "dbo", "People")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StreamModeSync, rec.Mode)
	assert.Equal(t, models.ContainerStatusActive, rec.Status)
	assert.Equal(t, "Person", rec.RenamedFrom)
	assert.Equal(t, []models.PropertyDefinition{{Name: "Age", DataType: models.DataTypeInteger}}, rec.Properties)
	assert.True(t, created.Equal(rec.CreatedAt))
}

func TestContainerRepository_GetMissing(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM [dbo].[GraphSinkContainers]")).
		WillReturnRows(sqlmock.NewRows(containerColumns))

	rec, err := NewContainerRepository().Get(context.Background(), db, "dbo", "Nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestContainerRepository_List(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY [SchemaName], [Name]")).
		WillReturnRows(sqlmock.NewRows(containerColumns).
			AddRow("dbo", "A", "Sync", nil, "active", nil, now, now).
			AddRow("dbo", "B", "EventStream", nil, "archived", nil, now, now))

	records, err := NewContainerRepository().List(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].Name)
	assert.Empty(t, records[0].Properties)
	assert.Equal(t, models.ContainerStatusArchived, records[1].Status)
}
