package sqlgen

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// BuildExistenceCheck returns a scalar query classifying the stored rows of an
// entity against version: 0 none, 1 earlier, 2 same, 3 newer. A stored row
// without a version counts as earlier. EventStream tables hold several rows
// per entity, so the highest stored version decides.
func BuildExistenceCheck(table naming.TableName, entityID uuid.UUID, version int64) (Command, error) {
	if table.IsZero() {
		return Command{}, apperrors.InvalidArgument("table", "must not be empty")
	}
	if entityID == uuid.Nil {
		return Command{}, apperrors.InvalidArgument("entity id", "must not be nil")
	}

	text := fmt.Sprintf(`SELECT CASE
    WHEN [stored].[StoredRows] = 0 THEN 0
    WHEN [stored].[%[1]s] IS NULL OR [stored].[%[1]s] < @%[1]s THEN 1
    WHEN [stored].[%[1]s] = @%[1]s THEN 2
    ELSE 3
END AS [Result]
FROM (
    SELECT COUNT(*) AS [StoredRows], MAX([%[1]s]) AS [%[1]s]
    FROM %[2]s
    WHERE [%[3]s] = @%[3]s
) AS [stored];`, ColumnPersistVersion, table, ColumnID)

	return Command{
		Text: text,
		Parameters: []Parameter{
			{Name: ColumnID, Type: TypeUniqueIdentifier, Value: entityID},
			{Name: ColumnPersistVersion, Type: TypeBigInt, Value: version},
		},
	}, nil
}

// ClassifyExistence maps the scalar returned by an existence check.
func ClassifyExistence(v any) (models.VersionCheckResult, error) {
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case int32:
		n = int64(x)
	case int:
		n = int64(x)
	case int16:
		n = int64(x)
	case uint8:
		n = int64(x)
	default:
		return 0, fmt.Errorf("%w: existence check returned %T %v", apperrors.ErrUnrecognizedResult, v, v)
	}

	switch result := models.VersionCheckResult(n); result {
	case models.NoVersionExists, models.EarlierVersionExists, models.SameVersionExists, models.NewerVersionExists:
		return result, nil
	default:
		return 0, fmt.Errorf("%w: existence check returned %d", apperrors.ErrUnrecognizedResult, n)
	}
}

// BuildPersistHashLookup returns a scalar query reading the stored persist hash
// of a Sync entity. The scalar is NULL when the entity has no row.
func BuildPersistHashLookup(table naming.TableName, entityID uuid.UUID) (Command, error) {
	if table.IsZero() {
		return Command{}, apperrors.InvalidArgument("table", "must not be empty")
	}
	if entityID == uuid.Nil {
		return Command{}, apperrors.InvalidArgument("entity id", "must not be nil")
	}

	return Command{
		Text: fmt.Sprintf("SELECT TOP (1) [%s] FROM %s WHERE [%s] = @%[3]s;", ColumnPersistHash, table, ColumnID),
		Parameters: []Parameter{
			{Name: ColumnID, Type: TypeUniqueIdentifier, Value: entityID},
		},
	}, nil
}
