package upgrade

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/sqlgen"
)

// Report summarizes what an upgrade run changed or found. AddedColumns holds
// Table.Column names.
type Report struct {
	AddedColumns  []string
	ArchivedTypes []string
	Incompatible  []*apperrors.IncompatibleSchemaError
}

// Upgrader brings an existing container up to the current layout when a stream
// is activated or verified.
type Upgrader struct {
	logger  *zap.Logger
	options sqlgen.Options
	now     func() time.Time
}

// NewUpgrader returns an Upgrader. A nil logger disables logging.
func NewUpgrader(options sqlgen.Options, logger *zap.Logger) *Upgrader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upgrader{
		logger:  logger.Named("upgrade"),
		options: options,
		now:     time.Now,
	}
}

// Run applies the upgrade steps in order: missing property columns and
// columns introduced after a table was first created are added,
// table types whose shape changed are archived and recreated, then every table
// is checked for a legacy layout. Legacy tables are logged and reported but do
// not stop the run. Invalid input and execution failures are returned.
func (u *Upgrader) Run(ctx context.Context, q Queryer, t sqlgen.Target) (*Report, error) {
	if q == nil {
		return nil, apperrors.InvalidArgument("queryer", "must not be nil")
	}
	if t.Names.Main.IsZero() || !t.Mode.IsValid() {
		return nil, apperrors.InvalidArgument("target", "is incomplete")
	}

	report := &Report{}
	logger := u.logger.With(zap.String("container", t.Names.Main.String()), zap.String("mode", t.Mode.String()))

	properties, err := sqlgen.ResolvePropertyColumns(t.Mode, t.Properties, u.options.NarrowTypes)
	if err != nil {
		return nil, err
	}
	for _, family := range models.TableFamilies {
		columns, err := additiveColumns(family, t.Mode)
		if err != nil {
			return nil, err
		}
		if family == models.TableFamilyMain {
			for _, p := range properties {
				columns = append(columns, p.Column)
			}
		}
		if len(columns) == 0 {
			continue
		}
		table, err := t.Names.ByFamily(family)
		if err != nil {
			return nil, err
		}
		added, err := EnsureColumns(ctx, q, table, columns)
		if err != nil {
			return nil, err
		}
		for _, c := range added {
			report.AddedColumns = append(report.AddedColumns, table.Name()+"."+c)
			logger.Info("Added missing column", zap.String("table", table.String()), zap.String("column", c))
		}
	}

	at := u.now().UTC()
	for _, family := range sqlgen.BulkFamilies {
		typeName, err := t.CustomType(family)
		if err != nil {
			return nil, err
		}
		columns, err := sqlgen.TableColumns(family, t.Mode, nil)
		if err != nil {
			return nil, err
		}
		archived, err := ArchiveCustomType(ctx, q, typeName, columns, at)
		if err != nil {
			return nil, err
		}
		if archived {
			report.ArchivedTypes = append(report.ArchivedTypes, typeName.String())
			logger.Info("Archived outdated table type", zap.String("type", typeName.String()))
		}
	}

	for _, family := range models.TableFamilies {
		table, err := t.Names.ByFamily(family)
		if err != nil {
			return nil, err
		}
		required, err := requiredColumns(family, t.Mode)
		if err != nil {
			return nil, err
		}

		err = CheckLegacyIncompatibility(ctx, q, table, required)
		var incompatible *apperrors.IncompatibleSchemaError
		switch {
		case err == nil:
		case errors.As(err, &incompatible):
			report.Incompatible = append(report.Incompatible, incompatible)
			logger.Warn("Container table uses a legacy schema",
				zap.String("table", table.String()),
				zap.Strings("missing_columns", incompatible.MissingColumns),
				zap.Error(err))
		default:
			return nil, err
		}
	}

	return report, nil
}

// additiveColumns are fixed columns introduced after the first layout. They
// are added in place instead of marking the table as legacy.
func additiveColumns(family models.TableFamily, mode models.StreamMode) ([]sqlgen.ColumnDefinition, error) {
	var names []string
	switch family {
	case models.TableFamilyMain:
		names = []string{sqlgen.ColumnTimestamp}
	case models.TableFamilyCode:
		names = []string{sqlgen.ColumnIsOriginEntityCode}
	default:
		return nil, nil
	}
	defs, err := sqlgen.TableColumns(family, mode, nil)
	if err != nil {
		return nil, err
	}
	var columns []sqlgen.ColumnDefinition
	for _, d := range defs {
		if slices.Contains(names, d.Name) {
			columns = append(columns, d)
		}
	}
	return columns, nil
}

// requiredColumns are the fixed columns a table must already have.
func requiredColumns(family models.TableFamily, mode models.StreamMode) ([]string, error) {
	defs, err := sqlgen.TableColumns(family, mode, nil)
	if err != nil {
		return nil, err
	}
	additive, err := additiveColumns(family, mode)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		if !slices.ContainsFunc(additive, func(c sqlgen.ColumnDefinition) bool { return c.Name == d.Name }) {
			names = append(names, d.Name)
		}
	}
	return names, nil
}
