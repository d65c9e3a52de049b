package upgrade

import (
	"context"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// CheckLegacyIncompatibility compares a table against the fixed columns the
// current layout requires. Missing columns cannot be repaired automatically, so
// they are reported as *apperrors.IncompatibleSchemaError with the closest
// existing column name per missing column as a hint. A missing table is not an error.
func CheckLegacyIncompatibility(ctx context.Context, q Queryer, table naming.TableName, required []string) error {
	ok, err := TableExists(ctx, q, table)
	if err != nil || !ok {
		return err
	}

	existing, err := TableColumns(ctx, q, table)
	if err != nil {
		return err
	}
	present := nameSet(existing)

	var missing []string
	for _, name := range required {
		if _, found := present[strings.ToLower(name)]; !found {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	hints := make(map[string]string)
	for _, m := range missing {
		if hint, ok := closestColumn(m, existing); ok {
			hints[m] = hint
		}
	}
	return &apperrors.IncompatibleSchemaError{
		Table:          table.String(),
		MissingColumns: missing,
		Hints:          hints,
	}
}

// closestColumn returns the existing column nearest to name by edit distance,
// provided the distance is at most half the length of name.
func closestColumn(name string, existing []string) (string, bool) {
	best, bestDistance := "", -1
	target := []rune(strings.ToLower(name))
	for _, e := range existing {
		d := levenshtein.DistanceForStrings(target, []rune(strings.ToLower(e)), levenshtein.DefaultOptions)
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = e, d
		}
	}
	if bestDistance < 0 || bestDistance > len(target)/2 {
		return "", false
	}
	return best, true
}
