package loader

import (
	"gopkg.in/yaml.v3"

	"github.com/smilemakc/mbflow/internal/domain"
)

// LoadYAML parses a YAML-encoded Document into a WorkflowDefinition.
func LoadYAML(data []byte) (domain.WorkflowDefinition, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.WorkflowDefinition{}, err
	}
	return doc.ToDefinition(), nil
}

// SaveYAML encodes a WorkflowDefinition as a YAML Document.
func SaveYAML(def domain.WorkflowDefinition) ([]byte, error) {
	return yaml.Marshal(FromDefinition(def))
}
