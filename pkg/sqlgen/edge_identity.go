package sqlgen

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
)

// edgeNamespace seeds name-based edge identifiers.
var edgeNamespace = uuid.MustParse("8f5a3c1e-6b2d-5e47-9a10-3c4d5e6f7a8b")

const edgeKeySeparator = "|"

// EdgeID derives the deterministic identifier of an edge from the owning
// entity, the direction, the edge type, the code at the far end and the sorted
// property bag. The same inputs always yield the same id.
//
// Components are joined with a separator that may itself occur in codes or
// property values, so distinct edges can in principle share an id.
func EdgeID(entityID uuid.UUID, edge models.Edge, direction models.EdgeDirection) (uuid.UUID, error) {
	code, err := EdgeCode(edge, direction)
	if err != nil {
		return uuid.Nil, err
	}

	keys := sortedKeys(edge.Properties)

	parts := make([]string, 0, 4+2*len(keys))
	parts = append(parts, entityID.String(), string(direction), edge.EdgeType, code)
	for _, k := range keys {
		parts = append(parts, k, edge.Properties[k])
	}
	return uuid.NewSHA1(edgeNamespace, []byte(strings.Join(parts, edgeKeySeparator))), nil
}

// EdgeCode returns the entity code at the far end of an edge.
func EdgeCode(edge models.Edge, direction models.EdgeDirection) (string, error) {
	switch direction {
	case models.EdgeDirectionOutgoing:
		return edge.ToReference, nil
	case models.EdgeDirectionIncoming:
		return edge.FromReference, nil
	default:
		return "", apperrors.UnrecognizedEnum("edge direction", direction)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
