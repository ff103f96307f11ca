// Package models defines the core data structures shared by the goal execution engine.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Supported outputSpec datatypes.
const (
	DatatypeDatetime = "datetime"
	DatatypeNumber   = "number"
	DatatypeBoolean  = "boolean"
	DatatypeString   = "string"
	DatatypeArray    = "array"
	DatatypeObject   = "object"
)

// Parameter is a single key/value input of a goal.
type Parameter struct {
	Key      string `json:"key"                validate:"required"`
	Value    any    `json:"value"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// String renders the value the way it is exposed to rules and containers.
func (p Parameter) String() string {
	switch v := p.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}

		return fmt.Sprintf("%g", v)
	case bool, int, int64:
		return fmt.Sprint(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(data)
	}
}

// OutputSpec declares one output a goal expects.
type OutputSpec struct {
	Name     string `json:"name"     validate:"required"`
	Datatype string `json:"datatype" validate:"required,oneof=datetime number boolean string array object"`
}

// GoalMetadata carries the routing information of a goal.
type GoalMetadata struct {
	Category       string   `json:"category,omitempty"`
	RequiresModel  bool     `json:"requiresModel"`
	PipelineStages []string `json:"pipelineStages"   validate:"dive,required"`
	Notes          string   `json:"notes,omitempty"`
}

// Goal is a declarative request for an outcome.
type Goal struct {
	GoalID              string               `json:"goalId"                        validate:"required"`
	GoalType            string               `json:"goalType"                      validate:"required"`
	Parameters          []Parameter          `json:"parameters"                    validate:"dive"`
	OutputSpec          []OutputSpec         `json:"outputSpec"                    validate:"dive"`
	Metadata            GoalMetadata         `json:"metadata"`
	SelectedModel       *ModelDescriptor     `json:"selectedModel,omitempty"`
	SelectionProvenance *SelectionProvenance `json:"selectionProvenance,omitempty"`
	Outputs             map[string]any       `json:"outputs,omitempty"`
}

// Parameter returns the parameter with the given key.
func (g *Goal) Parameter(key string) (Parameter, bool) {
	for _, p := range g.Parameters {
		if p.Key == key {
			return p, true
		}
	}

	return Parameter{}, false
}

// SetOutput records a produced output value.
func (g *Goal) SetOutput(name string, value any) {
	if g.Outputs == nil {
		g.Outputs = make(map[string]any)
	}

	g.Outputs[name] = value
}

// Clone returns a deep copy so a run never mutates the caller's goal.
func (g *Goal) Clone() *Goal {
	if g == nil {
		return nil
	}

	clone := *g
	clone.Parameters = append([]Parameter(nil), g.Parameters...)
	clone.OutputSpec = append([]OutputSpec(nil), g.OutputSpec...)
	clone.Metadata.PipelineStages = append([]string(nil), g.Metadata.PipelineStages...)

	if g.SelectedModel != nil {
		clone.SelectedModel = g.SelectedModel.Clone()
	}

	if g.SelectionProvenance != nil {
		p := *g.SelectionProvenance
		p.Evidence = append([]string(nil), g.SelectionProvenance.Evidence...)
		clone.SelectionProvenance = &p
	}

	if g.Outputs != nil {
		clone.Outputs = make(map[string]any, len(g.Outputs))
		for k, v := range g.Outputs {
			clone.Outputs[k] = v
		}
	}

	return &clone
}

// SelectionProvenance records why a model was bound to a goal.
type SelectionProvenance struct {
	RuleName    string    `json:"ruleName"`
	RuleVersion string    `json:"ruleVersion,omitempty"`
	EngineID    string    `json:"engine"`
	Evidence    []string  `json:"evidence"`
	Timestamp   time.Time `json:"timestamp"`
	Confidence  float64   `json:"confidence"`
	InputsHash  string    `json:"inputsHash,omitempty"`
}
