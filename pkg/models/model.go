package models

// ModelDescriptor describes an executable simulation model from the registry.
type ModelDescriptor struct {
	ModelID        string       `json:"modelId"`
	Purpose        string       `json:"purpose"`
	Version        string       `json:"version"`
	Description    string       `json:"description,omitempty"`
	ContainerImage string       `json:"containerImage"`
	ManifestPath   string       `json:"manifestPath"`
	OutputSchema   []OutputSpec `json:"outputSchema,omitempty"`
}

func (m *ModelDescriptor) Clone() *ModelDescriptor {
	if m == nil {
		return nil
	}

	c := *m
	c.OutputSchema = append([]OutputSpec(nil), m.OutputSchema...)

	return &c
}
