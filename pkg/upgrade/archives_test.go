package upgrade

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archiveCandidates(rows ...[2]string) *sqlmock.Rows {
	r := sqlmock.NewRows([]string{"name", "kind"})
	for _, row := range rows {
		r.AddRow(row[0], row[1])
	}
	return r
}

func TestListArchived(t *testing.T) {
	tx, mock := newMockTx(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sys.tables t")).
		WithArgs(sql.Named("Schema", "dbo")).
		WillReturnRows(archiveCandidates(
			[2]string{"Person", "U"},
			[2]string{"Person_20250102030405", "U"},
			[2]string{"PersonCodesType_20250102030405", "TT"},
			[2]string{"Person_20260101000000", "U"},
		))

	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	objects, err := ListArchived(context.Background(), tx, "dbo", cutoff)
	require.NoError(t, err)
	require.Len(t, objects, 2)

	assert.Equal(t, "[dbo].[Person_20250102030405]", objects[0].Name.String())
	assert.Equal(t, ArchivedTable, objects[0].Kind)
	assert.True(t, archiveTime.Equal(objects[0].ArchivedAt))
	assert.Equal(t, "[dbo].[PersonCodesType_20250102030405]", objects[1].Name.String())
	assert.Equal(t, ArchivedType, objects[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListArchived_ZeroCutoffReturnsAll(t *testing.T) {
	tx, mock := newMockTx(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sys.table_types tt")).
		WillReturnRows(archiveCandidates(
			[2]string{"Person_20250102030405", "U"},
			[2]string{"Person_20260101000000", "U"},
		))

	objects, err := ListArchived(context.Background(), tx, "dbo", time.Time{})
	require.NoError(t, err)
	assert.Len(t, objects, 2)
}

func TestDropArchived(t *testing.T) {
	tx, mock := newMockTx(t)
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS [dbo].[Person_20250102030405];")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DROP TYPE IF EXISTS [dbo].[PersonCodesType_20250102030405];")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, DropArchived(ctx, tx, ArchivedObject{Name: table(t, "Person_20250102030405"), Kind: ArchivedTable}))
	require.NoError(t, DropArchived(ctx, tx, ArchivedObject{Name: table(t, "PersonCodesType_20250102030405"), Kind: ArchivedType}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
