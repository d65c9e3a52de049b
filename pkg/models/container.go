package models

import (
	"time"

	"github.com/google/uuid"
)

// PropertyDataType is the declared vocabulary type of an entity property.
type PropertyDataType string

const (
	DataTypeText     PropertyDataType = "Text"
	DataTypeInteger  PropertyDataType = "Integer"
	DataTypeNumber   PropertyDataType = "Number"
	DataTypeBoolean  PropertyDataType = "Boolean"
	DataTypeDateTime PropertyDataType = "DateTime"
	DataTypeGuid     PropertyDataType = "Guid"
)

// PropertyDefinition declares one main-table property column.
type PropertyDefinition struct {
	Name     string           `json:"name" yaml:"name"`
	DataType PropertyDataType `json:"data_type" yaml:"data_type"`
}

// StreamDescriptor describes an active export stream bound to a container.
type StreamDescriptor struct {
	ID            uuid.UUID            `json:"id"`
	ProviderID    uuid.UUID            `json:"provider_id"`
	ContainerName string               `json:"container_name"`
	Mode          StreamMode           `json:"mode"`
	Properties    []PropertyDefinition `json:"properties,omitempty"`
}

// CreateContainerDescriptor describes a container that is about to be created.
type CreateContainerDescriptor struct {
	Name       string               `json:"name" yaml:"name"`
	Mode       StreamMode           `json:"mode" yaml:"mode"`
	Properties []PropertyDefinition `json:"properties,omitempty" yaml:"properties"`
}

// TableFamily identifies one of the physical tables derived from a container.
type TableFamily string

const (
	TableFamilyMain                   TableFamily = "Main"
	TableFamilyCode                   TableFamily = "Code"
	TableFamilyOutgoingEdge           TableFamily = "OutgoingEdge"
	TableFamilyIncomingEdge           TableFamily = "IncomingEdge"
	TableFamilyOutgoingEdgeProperties TableFamily = "OutgoingEdgeProperties"
	TableFamilyIncomingEdgeProperties TableFamily = "IncomingEdgeProperties"
)

// TableFamilies lists every family in creation order.
var TableFamilies = []TableFamily{
	TableFamilyMain,
	TableFamilyCode,
	TableFamilyOutgoingEdge,
	TableFamilyIncomingEdge,
	TableFamilyOutgoingEdgeProperties,
	TableFamilyIncomingEdgeProperties,
}

// VersionCheckResult classifies a stored entity against an incoming persist version.
type VersionCheckResult int

const (
	NoVersionExists VersionCheckResult = iota
	EarlierVersionExists
	SameVersionExists
	NewerVersionExists
)

func (r VersionCheckResult) String() string {
	switch r {
	case NoVersionExists:
		return "NoVersionExists"
	case EarlierVersionExists:
		return "EarlierVersionExists"
	case SameVersionExists:
		return "SameVersionExists"
	case NewerVersionExists:
		return "NewerVersionExists"
	default:
		return "Unknown"
	}
}

// ContainerStatus is the lifecycle state of a registered container.
type ContainerStatus string

const (
	ContainerStatusActive   ContainerStatus = "active"
	ContainerStatusArchived ContainerStatus = "archived"
	ContainerStatusRemoved  ContainerStatus = "removed"
)

// ContainerRecord is the bookkeeping row the connector keeps per container.
type ContainerRecord struct {
	Schema      string               `json:"schema"`
	Name        string               `json:"name"`
	Mode        StreamMode           `json:"mode"`
	Properties  []PropertyDefinition `json:"properties,omitempty"`
	Status      ContainerStatus      `json:"status"`
	RenamedFrom string               `json:"renamed_from,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}
