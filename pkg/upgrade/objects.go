package upgrade

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/sqlgen"
)

// maxRenamePasses bounds the constraint rename loop.
const maxRenamePasses = 16

// ArchiveCustomType makes typeName match columns. A missing type is created.
// A type whose column list differs is renamed with an archive suffix and
// recreated; table types cannot be altered in place. It reports whether an
// archive took place.
func ArchiveCustomType(ctx context.Context, q Queryer, typeName naming.TableName, columns []sqlgen.ColumnDefinition, at time.Time) (bool, error) {
	create, err := sqlgen.BuildCreateCustomType(typeName, columns)
	if err != nil {
		return false, err
	}

	found, err := TypeExists(ctx, q, typeName)
	if err != nil {
		return false, err
	}

	archived := false
	if found {
		current, err := TypeColumns(ctx, q, typeName)
		if err != nil {
			return false, err
		}
		if sameShape(current, columns) {
			return false, nil
		}

		target, err := typeName.Archived(at)
		if err != nil {
			return false, err
		}
		if err := rename(ctx, q, typeName.String(), target.Name(), objectTypeUserType); err != nil {
			return false, err
		}
		archived = true
	}

	if _, err := q.ExecContext(ctx, create.Text); err != nil {
		return archived, fmt.Errorf("failed to create type %s: %w", typeName, err)
	}
	return archived, nil
}

// RenameType renames a table type. A missing type is skipped; it reports
// whether a rename took place. The destination must not exist.
func RenameType(ctx context.Context, q Queryer, from, to naming.TableName) (bool, error) {
	if from.Schema() != to.Schema() {
		return false, apperrors.InvalidArgument("rename", "cannot move "+from.String()+" to another schema")
	}
	ok, err := TypeExists(ctx, q, from)
	if err != nil || !ok {
		return false, err
	}
	taken, err := TypeExists(ctx, q, to)
	if err != nil {
		return false, err
	}
	if taken {
		return false, apperrors.InvalidArgument("type "+to.String(), "already exists")
	}
	if err := rename(ctx, q, from.String(), to.Name(), objectTypeUserType); err != nil {
		return false, err
	}
	return true, nil
}

// ArchiveType renames a table type to its archive name for at. A missing type
// is skipped.
func ArchiveType(ctx context.Context, q Queryer, typeName naming.TableName, at time.Time) (bool, error) {
	target, err := typeName.Archived(at)
	if err != nil {
		return false, err
	}
	return RenameType(ctx, q, typeName, target)
}

func sameShape(current []string, columns []sqlgen.ColumnDefinition) bool {
	if len(current) != len(columns) {
		return false
	}
	for i, c := range columns {
		if !strings.EqualFold(current[i], c.Name) {
			return false
		}
	}
	return true
}

// RenameTable renames a table and then renames the constraints that carry the
// old table name so they follow it. The destination must not exist.
func RenameTable(ctx context.Context, q Queryer, from, to naming.TableName) error {
	if from.Schema() != to.Schema() {
		return apperrors.InvalidArgument("rename", "cannot move "+from.String()+" to another schema")
	}
	if err := renameTableOnly(ctx, q, from, to); err != nil {
		return err
	}

	// Either table name may be a prefix of the other, so a constraint is
	// recognized by the old prefix and is final once it carries a name this
	// rename produced.
	prefixes := constraintPrefixes(from.Name())
	produced := make(map[string]struct{})
	return renameConstraints(ctx, q, to, func(name string) (string, bool, error) {
		if _, done := produced[name]; done {
			return "", false, nil
		}
		for _, p := range prefixes {
			if !strings.HasPrefix(name, p.old) {
				continue
			}
			renamed, err := naming.Sanitize(p.kind + to.Name() + "_" + strings.TrimPrefix(name, p.old))
			if err != nil {
				return "", false, err
			}
			produced[renamed] = struct{}{}
			return renamed, true, nil
		}
		return "", false, nil
	})
}

// ArchiveTable renames a table to its archive name for at and suffixes every
// constraint it owns, freeing the original names for a new table. It returns
// the archive name.
func ArchiveTable(ctx context.Context, q Queryer, table naming.TableName, at time.Time) (naming.TableName, error) {
	archived, err := table.Archived(at)
	if err != nil {
		return naming.TableName{}, err
	}
	if err := renameTableOnly(ctx, q, table, archived); err != nil {
		return naming.TableName{}, err
	}

	suffix := naming.ArchiveSuffix(at)
	err = renameConstraints(ctx, q, archived, func(name string) (string, bool, error) {
		if strings.HasSuffix(name, suffix) {
			return "", false, nil
		}
		renamed, err := naming.WithSuffix(name, suffix)
		return renamed, err == nil, err
	})
	if err != nil {
		return naming.TableName{}, err
	}
	return archived, nil
}

func renameTableOnly(ctx context.Context, q Queryer, from, to naming.TableName) error {
	ok, err := TableExists(ctx, q, from)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.InvalidArgument("table "+from.String(), "does not exist")
	}
	taken, err := TableExists(ctx, q, to)
	if err != nil {
		return err
	}
	if taken {
		return apperrors.InvalidArgument("table "+to.String(), "already exists")
	}
	return rename(ctx, q, from.String(), to.Name(), objectTypeObject)
}

type constraintPrefix struct {
	kind string
	old  string
}

func constraintPrefixes(oldTable string) []constraintPrefix {
	return []constraintPrefix{
		{kind: "PK_", old: "PK_" + oldTable + "_"},
	}
}

// renameConstraints repeatedly lists the constraints of table and renames those
// for which next reports a new name, until a pass renames nothing.
func renameConstraints(ctx context.Context, q Queryer, table naming.TableName, next func(string) (string, bool, error)) error {
	for pass := 0; pass < maxRenamePasses; pass++ {
		constraints, err := Constraints(ctx, q, table)
		if err != nil {
			return err
		}

		renamed := 0
		for _, c := range constraints {
			newName, ok, err := next(c)
			if err != nil {
				return fmt.Errorf("constraint %s: %w", c, err)
			}
			if !ok || newName == c {
				continue
			}
			object := naming.QuoteName(table.Schema()) + "." + naming.QuoteName(c)
			if err := rename(ctx, q, object, newName, objectTypeObject); err != nil {
				return err
			}
			renamed++
		}
		if renamed == 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: constraints of %s still need renaming after %d passes",
		apperrors.ErrExecutionFailure, table, maxRenamePasses)
}
