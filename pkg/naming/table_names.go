package naming

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
)

// DefaultSchema is used when no schema is configured.
const DefaultSchema = "dbo"

// Table and type suffixes. They stay textual so the raw schema describes itself.
const (
	CodesSuffix                  = "Codes"
	OutgoingEdgesSuffix          = "OutgoingEdges"
	IncomingEdgesSuffix          = "IncomingEdges"
	OutgoingEdgePropertiesSuffix = "OutgoingEdgeProperties"
	IncomingEdgePropertiesSuffix = "IncomingEdgeProperties"
	CustomTypeSuffix             = "Type"
)

// TableName is an immutable, sanitized schema-qualified object name. The quoted
// form is computed once per value and shared by its copies.
type TableName struct {
	schema string
	name   string
	quoted *memo
}

type memo struct {
	once  sync.Once
	value string
}

// NewTableName sanitizes both parts and returns the qualified name.
// An empty schema selects DefaultSchema.
func NewTableName(schema, name string) (TableName, error) {
	if strings.TrimSpace(schema) == "" {
		schema = DefaultSchema
	}
	s, err := Sanitize(schema)
	if err != nil {
		return TableName{}, fmt.Errorf("schema: %w", err)
	}
	n, err := Sanitize(name)
	if err != nil {
		return TableName{}, fmt.Errorf("table: %w", err)
	}
	return TableName{schema: s, name: n, quoted: &memo{}}, nil
}

// Schema returns the sanitized schema name.
func (t TableName) Schema() string { return t.schema }

// Name returns the sanitized, unqualified object name.
func (t TableName) Name() string { return t.name }

// String returns the bracket-quoted form, e.g. [dbo].[Person].
func (t TableName) String() string {
	if t.quoted == nil {
		return t.format()
	}
	t.quoted.once.Do(func() {
		t.quoted.value = t.format()
	})
	return t.quoted.value
}

// Literal returns the qualified name as an N'' string literal for catalog
// functions such as OBJECT_ID and TYPE_ID.
func (t TableName) Literal() string {
	return "N'" + EscapeStringLiteral(t.String()) + "'"
}

// IsZero reports whether the name was never initialized.
func (t TableName) IsZero() bool {
	return t.name == ""
}

// Equal compares schema and name.
func (t TableName) Equal(other TableName) bool {
	return t.schema == other.schema && t.name == other.name
}

// WithName returns a name in the same schema.
func (t TableName) WithName(name string) (TableName, error) {
	return NewTableName(t.schema, name)
}

// Archived returns the name this object receives when superseded at the given time.
func (t TableName) Archived(at time.Time) (TableName, error) {
	n, err := WithSuffix(t.name, ArchiveSuffix(at))
	if err != nil {
		return TableName{}, err
	}
	return NewTableName(t.schema, n)
}

func (t TableName) format() string {
	return QuoteName(t.schema) + "." + QuoteName(t.name)
}

// QuoteName wraps an identifier in brackets, escaping ] as ]].
func QuoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

// EscapeStringLiteral escapes a value for use inside a SQL Server string literal.
func EscapeStringLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// MainTable returns the main entity table of a container.
func MainTable(container, schema string) (TableName, error) {
	if strings.TrimSpace(container) == "" {
		return TableName{}, apperrors.InvalidArgument("container", "must not be empty")
	}
	return NewTableName(schema, container)
}

// CodeTable returns the entity code table of a container.
func CodeTable(container, schema string) (TableName, error) {
	return suffixed(container, schema, CodesSuffix)
}

// EdgesTable returns the edge table of a container for one direction.
func EdgesTable(container, schema string, direction models.EdgeDirection) (TableName, error) {
	switch direction {
	case models.EdgeDirectionOutgoing:
		return suffixed(container, schema, OutgoingEdgesSuffix)
	case models.EdgeDirectionIncoming:
		return suffixed(container, schema, IncomingEdgesSuffix)
	default:
		return TableName{}, apperrors.UnrecognizedEnum("edge direction", direction)
	}
}

// EdgePropertiesTable returns the edge property table of a container for one direction.
func EdgePropertiesTable(container, schema string, direction models.EdgeDirection) (TableName, error) {
	switch direction {
	case models.EdgeDirectionOutgoing:
		return suffixed(container, schema, OutgoingEdgePropertiesSuffix)
	case models.EdgeDirectionIncoming:
		return suffixed(container, schema, IncomingEdgePropertiesSuffix)
	default:
		return TableName{}, apperrors.UnrecognizedEnum("edge direction", direction)
	}
}

// CustomType returns the table-valued type that mirrors table.
func CustomType(table TableName) (TableName, error) {
	if table.IsZero() {
		return TableName{}, apperrors.InvalidArgument("table", "must not be empty")
	}
	return NewTableName(table.schema, table.name+CustomTypeSuffix)
}

func suffixed(container, schema, suffix string) (TableName, error) {
	if strings.TrimSpace(container) == "" {
		return TableName{}, apperrors.InvalidArgument("container", "must not be empty")
	}
	return NewTableName(schema, container+suffix)
}

// TableNames is the full physical name family of one container.
type TableNames struct {
	Main                   TableName
	Codes                  TableName
	OutgoingEdges          TableName
	IncomingEdges          TableName
	OutgoingEdgeProperties TableName
	IncomingEdgeProperties TableName
}

// ForContainer derives every table name of a container from its raw name.
func ForContainer(container, schema string) (TableNames, error) {
	var (
		names TableNames
		err   error
	)
	if names.Main, err = MainTable(container, schema); err != nil {
		return TableNames{}, err
	}
	if names.Codes, err = CodeTable(container, schema); err != nil {
		return TableNames{}, err
	}
	if names.OutgoingEdges, err = EdgesTable(container, schema, models.EdgeDirectionOutgoing); err != nil {
		return TableNames{}, err
	}
	if names.IncomingEdges, err = EdgesTable(container, schema, models.EdgeDirectionIncoming); err != nil {
		return TableNames{}, err
	}
	if names.OutgoingEdgeProperties, err = EdgePropertiesTable(container, schema, models.EdgeDirectionOutgoing); err != nil {
		return TableNames{}, err
	}
	if names.IncomingEdgeProperties, err = EdgePropertiesTable(container, schema, models.EdgeDirectionIncoming); err != nil {
		return TableNames{}, err
	}
	return names, nil
}

// ForStream derives the name family of the container a stream exports to.
func ForStream(stream *models.StreamDescriptor, schema string) (TableNames, error) {
	if stream == nil {
		return TableNames{}, apperrors.InvalidArgument("stream", "must not be nil")
	}
	return ForContainer(stream.ContainerName, schema)
}

// ForCreateContainer derives the name family of a container being created.
func ForCreateContainer(desc *models.CreateContainerDescriptor, schema string) (TableNames, error) {
	if desc == nil {
		return TableNames{}, apperrors.InvalidArgument("container descriptor", "must not be nil")
	}
	return ForContainer(desc.Name, schema)
}

// ByFamily returns the table of one family.
func (n TableNames) ByFamily(family models.TableFamily) (TableName, error) {
	switch family {
	case models.TableFamilyMain:
		return n.Main, nil
	case models.TableFamilyCode:
		return n.Codes, nil
	case models.TableFamilyOutgoingEdge:
		return n.OutgoingEdges, nil
	case models.TableFamilyIncomingEdge:
		return n.IncomingEdges, nil
	case models.TableFamilyOutgoingEdgeProperties:
		return n.OutgoingEdgeProperties, nil
	case models.TableFamilyIncomingEdgeProperties:
		return n.IncomingEdgeProperties, nil
	default:
		return TableName{}, apperrors.UnrecognizedEnum("table family", family)
	}
}

// Edges returns the edge table for a direction.
func (n TableNames) Edges(direction models.EdgeDirection) (TableName, error) {
	switch direction {
	case models.EdgeDirectionOutgoing:
		return n.OutgoingEdges, nil
	case models.EdgeDirectionIncoming:
		return n.IncomingEdges, nil
	default:
		return TableName{}, apperrors.UnrecognizedEnum("edge direction", direction)
	}
}

// EdgeProperties returns the edge property table for a direction.
func (n TableNames) EdgeProperties(direction models.EdgeDirection) (TableName, error) {
	switch direction {
	case models.EdgeDirectionOutgoing:
		return n.OutgoingEdgeProperties, nil
	case models.EdgeDirectionIncoming:
		return n.IncomingEdgeProperties, nil
	default:
		return TableName{}, apperrors.UnrecognizedEnum("edge direction", direction)
	}
}

// All returns every table in creation order.
func (n TableNames) All() []TableName {
	return []TableName{
		n.Main,
		n.Codes,
		n.OutgoingEdges,
		n.IncomingEdges,
		n.OutgoingEdgeProperties,
		n.IncomingEdgeProperties,
	}
}
