package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Canonical pipeline stage names.
const (
	StageModelResolution = "swrlSelection"
	StageDataBinding     = "yamlBinding"
	StageSimulation      = "simulation"

	// StageModelSelection names the pre-flight check that runs before any
	// pipeline stage.
	StageModelSelection = "modelSelection"
)

type StageStatus string

const (
	StageStatusSuccess   StageStatus = "success"
	StageStatusCompleted StageStatus = "completed"
	StageStatusError     StageStatus = "error"
)

type PayloadKind string

const (
	PayloadResolution PayloadKind = "resolution"
	PayloadBinding    PayloadKind = "binding"
	PayloadSimulation PayloadKind = "simulation"
)

// StagePayload is the stage-specific part of a StageResult.
type StagePayload interface {
	Kind() PayloadKind
	StageStatus() StageStatus
	Handler() string
}

// StageResult is what one handler produced for one stage.
type StageResult struct {
	Stage       string       `json:"stage"`
	Status      StageStatus  `json:"status"`
	HandlerID   string       `json:"handlerId"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt time.Time    `json:"completedAt"`
	Payload     StagePayload `json:"-"`
}

type stageResultJSON struct {
	Stage       string          `json:"stage"`
	Status      StageStatus     `json:"status"`
	HandlerID   string          `json:"handlerId"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt time.Time       `json:"completedAt"`
	Kind        PayloadKind     `json:"kind,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func (r StageResult) MarshalJSON() ([]byte, error) {
	out := stageResultJSON{
		Stage:       r.Stage,
		Status:      r.Status,
		HandlerID:   r.HandlerID,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}

	if r.Payload != nil {
		data, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, err
		}

		out.Kind = r.Payload.Kind()
		out.Payload = data
	}

	return json.Marshal(out)
}

func (r *StageResult) UnmarshalJSON(data []byte) error {
	var in stageResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	r.Stage = in.Stage
	r.Status = in.Status
	r.HandlerID = in.HandlerID
	r.StartedAt = in.StartedAt
	r.CompletedAt = in.CompletedAt
	r.Payload = nil

	if len(in.Payload) == 0 || in.Kind == "" {
		return nil
	}

	var payload StagePayload

	switch in.Kind {
	case PayloadResolution:
		payload = &ResolutionResult{}
	case PayloadBinding:
		payload = &BindingResult{}
	case PayloadSimulation:
		payload = &SimulationResult{}
	default:
		return fmt.Errorf("unknown stage payload kind %q", in.Kind)
	}

	if err := json.Unmarshal(in.Payload, payload); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", in.Kind, err)
	}

	r.Payload = payload

	return nil
}

// NewStageResult wraps a payload with its stage name and timing.
func NewStageResult(stage string, payload StagePayload, startedAt, completedAt time.Time) StageResult {
	return StageResult{
		Stage:       stage,
		Status:      payload.StageStatus(),
		HandlerID:   payload.Handler(),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Payload:     payload,
	}
}

// ResolutionResult is produced by the model-resolution stage.
type ResolutionResult struct {
	Status        StageStatus      `json:"status"`
	HandlerID     string           `json:"handlerId"`
	SelectedModel *ModelDescriptor `json:"selectedModel,omitempty"`
	ManifestPath  string           `json:"manifestPath,omitempty"`
	ModelStatus   string           `json:"modelStatus,omitempty"`
	Error         string           `json:"error,omitempty"`
}

func (r *ResolutionResult) Kind() PayloadKind        { return PayloadResolution }
func (r *ResolutionResult) StageStatus() StageStatus { return r.Status }
func (r *ResolutionResult) Handler() string          { return r.HandlerID }

// SourceOutcome is the per-source record of a binding run.
type SourceOutcome struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Path        string `json:"path,omitempty"`
	Size        int64  `json:"size,omitempty"`
	RecordCount int    `json:"record_count,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s SourceOutcome) Succeeded() bool {
	return s.Error == ""
}

// BindingResult is produced by the data-binding stage.
type BindingResult struct {
	Status               StageStatus     `json:"status"`
	HandlerID            string          `json:"handlerId"`
	ManifestPath         string          `json:"manifest_path"`
	WorkDirectory        string          `json:"work_directory"`
	TotalSources         int             `json:"total_sources"`
	SuccessfulSources    int             `json:"successful_sources"`
	SuccessRate          float64         `json:"success_rate"`
	RequiredSourcesCount int             `json:"required_sources_count"`
	OptionalSourcesCount int             `json:"optional_sources_count"`
	RequiredSuccessCount int             `json:"required_success_count"`
	RequiredSuccessRate  float64         `json:"required_success_rate"`
	Sources              []SourceOutcome `json:"sources"`
	Error                string          `json:"error,omitempty"`
}

func (r *BindingResult) Kind() PayloadKind        { return PayloadBinding }
func (r *BindingResult) StageStatus() StageStatus { return r.Status }
func (r *BindingResult) Handler() string          { return r.HandlerID }

// Files returns the successfully written data files keyed by source name.
func (r *BindingResult) Files() map[string]string {
	files := make(map[string]string)

	for _, s := range r.Sources {
		if s.Succeeded() && s.Path != "" {
			files[s.Name] = s.Path
		}
	}

	return files
}

// SimulationResult is produced by the simulation stage.
type SimulationResult struct {
	Status         StageStatus    `json:"status"`
	HandlerID      string         `json:"handlerId"`
	ContainerImage string         `json:"containerImage"`
	ExecutionID    string         `json:"executionId"`
	ExitCode       int            `json:"exitCode"`
	InputPath      string         `json:"inputPath,omitempty"`
	LogPath        string         `json:"logPath,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
	MappedOutputs  map[string]any `json:"mappedOutputs,omitempty"`
	Duration       time.Duration  `json:"duration"`
	Error          string         `json:"error,omitempty"`
}

func (r *SimulationResult) Kind() PayloadKind        { return PayloadSimulation }
func (r *SimulationResult) StageStatus() StageStatus { return r.Status }
func (r *SimulationResult) Handler() string          { return r.HandlerID }

// StageGateResult is the verdict of the gate validator for one stage.
type StageGateResult struct {
	Stage             string         `json:"stage"`
	Passed            bool           `json:"passed"`
	Reason            string         `json:"reason"`
	ValidationDetails map[string]any `json:"validationDetails,omitempty"`
}
