package sqlgen

import (
	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/naming"
)

// Target is the container a command set is generated for.
type Target struct {
	Names      naming.TableNames
	Mode       models.StreamMode
	Properties []models.PropertyDefinition
}

// NewTarget derives the table names of a container and binds the stream mode
// and declared properties.
func NewTarget(container, schema string, mode models.StreamMode, properties []models.PropertyDefinition) (Target, error) {
	if err := validateMode(mode); err != nil {
		return Target{}, err
	}
	names, err := naming.ForContainer(container, schema)
	if err != nil {
		return Target{}, err
	}
	return Target{Names: names, Mode: mode, Properties: properties}, nil
}

// TargetForStream returns the target of an export stream.
func TargetForStream(stream *models.StreamDescriptor, schema string) (Target, error) {
	if stream == nil {
		return Target{}, apperrors.InvalidArgument("stream", "must not be nil")
	}
	return NewTarget(stream.ContainerName, schema, stream.Mode, stream.Properties)
}

// TargetForCreateContainer returns the target of a container being created.
func TargetForCreateContainer(desc *models.CreateContainerDescriptor, schema string) (Target, error) {
	if desc == nil {
		return Target{}, apperrors.InvalidArgument("container descriptor", "must not be nil")
	}
	return NewTarget(desc.Name, schema, desc.Mode, desc.Properties)
}

func (t Target) validate() error {
	if t.Names.Main.IsZero() {
		return apperrors.InvalidArgument("target", "has no table names")
	}
	return validateMode(t.Mode)
}

// CustomType returns the table type used to bulk insert into family.
func (t Target) CustomType(family models.TableFamily) (naming.TableName, error) {
	table, err := t.Names.ByFamily(family)
	if err != nil {
		return naming.TableName{}, err
	}
	return naming.CustomType(table)
}
