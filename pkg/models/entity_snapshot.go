// Package models contains domain types for ekaya-graphsink.
package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamMode selects how snapshots are persisted.
type StreamMode string

const (
	// StreamModeSync keeps the last known state of every entity; writes reconcile in place.
	StreamModeSync StreamMode = "Sync"
	// StreamModeEventStream appends every change as a new row keyed by correlation id.
	StreamModeEventStream StreamMode = "EventStream"
)

// String returns the string representation of a StreamMode.
func (m StreamMode) String() string {
	return string(m)
}

// IsValid returns true if the mode is a known stream mode.
func (m StreamMode) IsValid() bool {
	switch m {
	case StreamModeSync, StreamModeEventStream:
		return true
	default:
		return false
	}
}

// ChangeType tags an EventStream snapshot with the kind of change it records.
type ChangeType string

const (
	ChangeTypeAdded   ChangeType = "Added"
	ChangeTypeChanged ChangeType = "Changed"
	ChangeTypeRemoved ChangeType = "Removed"
)

// IsValid returns true if the change type is one of the known values.
func (c ChangeType) IsValid() bool {
	switch c {
	case ChangeTypeAdded, ChangeTypeChanged, ChangeTypeRemoved:
		return true
	default:
		return false
	}
}

// EdgeDirection selects the incoming or outgoing edge tables.
type EdgeDirection string

const (
	EdgeDirectionIncoming EdgeDirection = "Incoming"
	EdgeDirectionOutgoing EdgeDirection = "Outgoing"
)

// IsValid returns true if the direction is Incoming or Outgoing.
func (d EdgeDirection) IsValid() bool {
	return d == EdgeDirectionIncoming || d == EdgeDirectionOutgoing
}

// EdgeDirections lists both directions in table creation order.
var EdgeDirections = []EdgeDirection{EdgeDirectionOutgoing, EdgeDirectionIncoming}

// PersistInfo identifies the stored revision of an entity.
type PersistInfo struct {
	Version int64  `json:"version"`
	Hash    string `json:"hash"`
}

// Property is one named, typed value of an entity.
type Property struct {
	Name     string           `json:"name"`
	Value    any              `json:"value"`
	DataType PropertyDataType `json:"data_type,omitempty"`
}

// EntityCode is an alternate identifier of an entity.
type EntityCode struct {
	Value    string `json:"value"`
	IsOrigin bool   `json:"is_origin"`
}

// Edge is a typed, directed relationship between two entity references.
type Edge struct {
	EdgeType      string            `json:"edge_type"`
	FromReference string            `json:"from_reference"`
	ToReference   string            `json:"to_reference"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// EntitySnapshot is the complete state of one entity at one point in time.
// ChangeType and CorrelationID are only meaningful in EventStream mode.
type EntitySnapshot struct {
	ID               uuid.UUID    `json:"id"`
	PersistInfo      PersistInfo  `json:"persist_info"`
	OriginEntityCode string       `json:"origin_entity_code"`
	EntityType       string       `json:"entity_type"`
	Properties       []Property   `json:"properties,omitempty"`
	Codes            []EntityCode `json:"codes,omitempty"`
	IncomingEdges    []Edge       `json:"incoming_edges,omitempty"`
	OutgoingEdges    []Edge       `json:"outgoing_edges,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
	StreamMode       StreamMode   `json:"stream_mode"`
	ChangeType       ChangeType   `json:"change_type,omitempty"`
	CorrelationID    uuid.UUID    `json:"correlation_id,omitempty"`
}

// Edges returns the edges of the snapshot in the given direction.
func (s *EntitySnapshot) Edges(direction EdgeDirection) []Edge {
	if direction == EdgeDirectionIncoming {
		return s.IncomingEdges
	}
	return s.OutgoingEdges
}
