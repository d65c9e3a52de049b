// Package sql audits raw upstream names that end up in generated SQL.
//
// Container, property and edge property names are sanitized before they reach
// command text, so an injection-shaped name is never executed. The audit exists
// so operators learn that an upstream producer emits hostile names.
package sql

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
)

// Name kinds reported by the audit.
const (
	KindContainer       = "container"
	KindProperty        = "property"
	KindEdgeType        = "edge_type"
	KindEdgePropertyKey = "edge_property_key"
)

// InjectionCheckResult describes a raw name that matched an injection pattern.
type InjectionCheckResult struct {
	Kind        string // What the name identifies (container, property, ...)
	Name        string // The raw name as received
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckNameForInjection uses libinjection to detect SQL injection patterns in
// a raw name. Returns nil if the name is clean.
//
// Example:
//
//	CheckNameForInjection(KindProperty, "FirstName")             // nil
//	CheckNameForInjection(KindProperty, "x'; DROP TABLE users--") // Fingerprint "s&1c" or similar
func CheckNameForInjection(kind, name string) *InjectionCheckResult {
	if name == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(name)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Kind:        kind,
		Name:        name,
		Fingerprint: string(fingerprint),
	}
}

// CheckContainer audits a container name and its declared property names.
func CheckContainer(desc *models.CreateContainerDescriptor) []*InjectionCheckResult {
	if desc == nil {
		return nil
	}
	var results []*InjectionCheckResult
	if r := CheckNameForInjection(KindContainer, desc.Name); r != nil {
		results = append(results, r)
	}
	for _, p := range desc.Properties {
		if r := CheckNameForInjection(KindProperty, p.Name); r != nil {
			results = append(results, r)
		}
	}
	return results
}

// CheckSnapshot audits the property names, edge types and edge property keys
// of a snapshot. Values are not checked: they always travel as parameters.
func CheckSnapshot(s *models.EntitySnapshot) []*InjectionCheckResult {
	if s == nil {
		return nil
	}
	var results []*InjectionCheckResult
	add := func(kind, name string) {
		if r := CheckNameForInjection(kind, name); r != nil {
			results = append(results, r)
		}
	}

	for _, p := range s.Properties {
		add(KindProperty, p.Name)
	}
	for _, direction := range models.EdgeDirections {
		for _, e := range s.Edges(direction) {
			add(KindEdgeType, e.EdgeType)
			keys := make([]string, 0, len(e.Properties))
			for k := range e.Properties {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				add(KindEdgePropertyKey, k)
			}
		}
	}
	return results
}

// EventSQLInjectionAttempt is the event_type of injection audit entries.
const EventSQLInjectionAttempt = "sql_injection_attempt"

// LogResults writes one warning per detected name to the security_audit logger.
func LogResults(logger *zap.Logger, results []*InjectionCheckResult, fields ...zap.Field) {
	if logger == nil {
		return
	}
	logger = logger.Named("security_audit")
	for _, r := range results {
		logger.Warn("Raw name matches a SQL injection pattern; it will be sanitized",
			append([]zap.Field{
				zap.String("event_type", EventSQLInjectionAttempt),
				zap.String("kind", r.Kind),
				zap.String("name", r.Name),
				zap.String("fingerprint", r.Fingerprint),
			}, fields...)...)
	}
}
