package sqlgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// Parameter names shared by the bulk and delete commands.
const (
	ParamEntityID = "EntityId"
	ParamRows     = "Rows"
)

// KeyCollation compares natural string keys exactly, whatever the database
// default collation.
const KeyCollation = "Latin1_General_BIN2"

// xactAbortOption is the @@OPTIONS bit of SET XACT_ABORT.
const xactAbortOption = 16384

// BulkTable describes a satellite table written from a table-valued parameter.
// MatchKeys is the natural key compared during Sync reconciliation.
type BulkTable[R any] struct {
	Table     naming.TableName
	RowType   naming.TableName
	Columns   []RowColumn[R]
	MatchKeys []string
}

// BuildBulkInsert appends every row through one table-valued parameter. An
// empty row set yields no command.
func BuildBulkInsert[R any](b BulkTable[R], rows []R) ([]Command, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	tvp, err := b.tableValue(rows)
	if err != nil {
		return nil, err
	}
	if len(tvp.Rows) == 0 {
		return nil, nil
	}

	names := b.quotedColumns()
	text := fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s\nFROM @%s;",
		b.Table, names, names, ParamRows)
	return []Command{{
		Text:       text,
		Parameters: []Parameter{{Name: ParamRows, Type: TypeStructured, Value: tvp}},
	}}, nil
}

// BuildSyncReconcile makes the rows of one entity equal to rows. Rows whose
// natural key is absent from the desired set are deleted and desired rows not
// yet stored are inserted, in one transaction that aborts as a whole on any
// error. The session's XACT_ABORT setting is restored after the commit. String
// keys compare with KeyCollation, so a key that only changes case is replaced.
// Applying the same set twice changes nothing. An empty desired set deletes
// every row of the entity.
func BuildSyncReconcile[R any](b BulkTable[R], entityID uuid.UUID, rows []R) ([]Command, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if len(b.MatchKeys) == 0 {
		return nil, apperrors.InvalidArgument("match keys", "must not be empty")
	}
	if entityID == uuid.Nil {
		return nil, apperrors.InvalidArgument("entity id", "must not be nil")
	}

	tvp, err := b.tableValue(rows)
	if err != nil {
		return nil, err
	}
	if len(tvp.Rows) == 0 {
		return []Command{BuildDeleteByEntity(b.Table, ColumnEntityID, entityID)}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "DECLARE @RestoreXactAbort bit = CASE WHEN @@OPTIONS & %d = 0 THEN 1 ELSE 0 END;\n", xactAbortOption)
	sb.WriteString("SET XACT_ABORT ON;\n")
	sb.WriteString("BEGIN TRANSACTION;\n")
	sb.WriteString("DELETE [existing]\n")
	fmt.Fprintf(&sb, "FROM %s AS [existing]\n", b.Table)
	fmt.Fprintf(&sb, "WHERE [existing].[%s] = @%s\n", ColumnEntityID, ParamEntityID)
	fmt.Fprintf(&sb, "%sAND NOT EXISTS (SELECT 1 FROM @%s AS [desired] WHERE %s);\n",
		indent, ParamRows, b.keyMatch())
	fmt.Fprintf(&sb, "INSERT INTO %s (%s)\n", b.Table, b.quotedColumns())
	fmt.Fprintf(&sb, "SELECT %s\n", b.qualifiedColumns("desired"))
	fmt.Fprintf(&sb, "FROM @%s AS [desired]\n", ParamRows)
	fmt.Fprintf(&sb, "WHERE NOT EXISTS (SELECT 1 FROM %s AS [existing] WHERE [existing].[%s] = @%s AND %s);\n",
		b.Table, ColumnEntityID, ParamEntityID, b.keyMatch())
	sb.WriteString("COMMIT TRANSACTION;\n")
	sb.WriteString("IF @RestoreXactAbort = 1 SET XACT_ABORT OFF;")

	return []Command{{
		Text: sb.String(),
		Parameters: []Parameter{
			entityIDParameter(entityID),
			{Name: ParamRows, Type: TypeStructured, Value: tvp},
		},
	}}, nil
}

func (b BulkTable[R]) validate() error {
	if b.Table.IsZero() || b.RowType.IsZero() {
		return apperrors.InvalidArgument("bulk table", "has no table or row type")
	}
	if len(b.Columns) == 0 {
		return apperrors.InvalidArgument("bulk table", "has no columns")
	}
	for _, k := range b.MatchKeys {
		if b.columnIndex(k) < 0 {
			return apperrors.InvalidArgument("match key "+k, "is not a column of "+b.Table.String())
		}
	}
	return nil
}

// tableValue extracts the rows, dropping any row whose natural key repeats an
// earlier one.
func (b BulkTable[R]) tableValue(rows []R) (TableValuedParameter, error) {
	tvp := TableValuedParameter{
		TypeName: b.RowType,
		Columns:  Definitions(b.Columns),
		Rows:     make([][]any, 0, len(rows)),
	}

	keyIdx := make([]int, len(b.MatchKeys))
	for i, k := range b.MatchKeys {
		keyIdx[i] = b.columnIndex(k)
	}

	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		values := Values(b.Columns, r)
		if len(keyIdx) > 0 {
			parts := make([]string, len(keyIdx))
			for i, idx := range keyIdx {
				parts[i] = fmt.Sprint(values[idx])
			}
			key := strings.Join(parts, "\x00")
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		tvp.Rows = append(tvp.Rows, values)
	}
	return tvp, nil
}

func (b BulkTable[R]) columnIndex(name string) int {
	for i, c := range b.Columns {
		if c.Column.Name == name {
			return i
		}
	}
	return -1
}

func (b BulkTable[R]) quotedColumns() string {
	return quotedList(columnNames(Definitions(b.Columns)))
}

func (b BulkTable[R]) qualifiedColumns(alias string) string {
	parts := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		parts[i] = naming.QuoteName(alias) + "." + naming.QuoteName(c.Column.Name)
	}
	return strings.Join(parts, ", ")
}

func (b BulkTable[R]) keyMatch() string {
	parts := make([]string, len(b.MatchKeys))
	for i, k := range b.MatchKeys {
		q := naming.QuoteName(k)
		parts[i] = fmt.Sprintf("[desired].%s = [existing].%s", q, q)
		if isStringType(b.Columns[b.columnIndex(k)].Column.Type) {
			parts[i] += " COLLATE " + KeyCollation
		}
	}
	return strings.Join(parts, " AND ")
}

func isStringType(sqlType string) bool {
	t := strings.ToLower(sqlType)
	for _, prefix := range []string{"nvarchar", "varchar", "nchar", "char"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

// CodeRows returns the code rows of a snapshot.
func CodeRows(s *models.EntitySnapshot) []CodeRow {
	rows := make([]CodeRow, 0, len(s.Codes))
	for _, c := range s.Codes {
		rows = append(rows, CodeRow{
			EntityID:      s.ID,
			Code:          c.Value,
			IsOrigin:      c.IsOrigin,
			ChangeType:    s.ChangeType,
			CorrelationID: s.CorrelationID,
		})
	}
	return rows
}

// EdgeRows returns the edge rows of a snapshot for one direction.
func EdgeRows(s *models.EntitySnapshot, direction models.EdgeDirection) ([]EdgeRow, error) {
	edges := s.Edges(direction)
	rows := make([]EdgeRow, 0, len(edges))
	for _, e := range edges {
		id, err := EdgeID(s.ID, e, direction)
		if err != nil {
			return nil, err
		}
		code, err := EdgeCode(e, direction)
		if err != nil {
			return nil, err
		}
		rows = append(rows, EdgeRow{
			ID:            id,
			EntityID:      s.ID,
			EdgeType:      e.EdgeType,
			Code:          code,
			ChangeType:    s.ChangeType,
			CorrelationID: s.CorrelationID,
		})
	}
	return rows, nil
}

// EdgePropertyRows returns one row per property of every edge in one
// direction, keys in sorted order.
func EdgePropertyRows(s *models.EntitySnapshot, direction models.EdgeDirection) ([]EdgePropertyRow, error) {
	var rows []EdgePropertyRow
	for _, e := range s.Edges(direction) {
		if len(e.Properties) == 0 {
			continue
		}
		id, err := EdgeID(s.ID, e, direction)
		if err != nil {
			return nil, err
		}
		for _, k := range sortedKeys(e.Properties) {
			rows = append(rows, EdgePropertyRow{
				EdgeID:        id,
				KeyName:       k,
				EntityID:      s.ID,
				Value:         e.Properties[k],
				CorrelationID: s.CorrelationID,
			})
		}
	}
	return rows, nil
}
