package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
)

// LoadContainerDefinition reads a YAML container definition:
//
//	name: Person
//	mode: Sync
//	properties:
//	  - name: FirstName
//	    data_type: Text
//
// An empty mode falls back to defaultMode. Properties without a data type are Text.
func LoadContainerDefinition(path string, defaultMode models.StreamMode) (*models.CreateContainerDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read container definition: %w", err)
	}

	var desc models.CreateContainerDescriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse container definition %s: %w", path, err)
	}

	if desc.Name == "" {
		return nil, fmt.Errorf("container definition %s: name is required", path)
	}
	if desc.Mode == "" {
		desc.Mode = defaultMode
	}
	if !desc.Mode.IsValid() {
		return nil, fmt.Errorf("container definition %s: unknown mode %q", path, desc.Mode)
	}
	for i := range desc.Properties {
		if desc.Properties[i].Name == "" {
			return nil, fmt.Errorf("container definition %s: property %d has no name", path, i)
		}
		if desc.Properties[i].DataType == "" {
			desc.Properties[i].DataType = models.DataTypeText
		}
	}

	return &desc, nil
}
