package loader

import (
	"encoding/json"

	"github.com/smilemakc/mbflow/internal/domain"
)

// LoadJSON parses a JSON-encoded Document into a WorkflowDefinition.
func LoadJSON(data []byte) (domain.WorkflowDefinition, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.WorkflowDefinition{}, err
	}
	return doc.ToDefinition(), nil
}

// SaveJSON encodes a WorkflowDefinition as an indented JSON Document.
func SaveJSON(def domain.WorkflowDefinition) ([]byte, error) {
	return json.MarshalIndent(FromDefinition(def), "", "  ")
}
