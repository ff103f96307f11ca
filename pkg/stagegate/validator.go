// Package stagegate decides whether a stage's output is good enough for the
// pipeline to continue.
package stagegate

import (
	"fmt"

	"github.com/dukex/goalgate/pkg/models"
)

const ReasonNoCriteria = "No validation criteria defined"

// Predicate inspects one stage result and returns whether it passes, a
// human-readable reason and the values it looked at.
type Predicate func(result models.StageResult) (bool, string, map[string]any)

// Criteria maps stage names to their pass predicate.
type Criteria map[string]Predicate

// Validator is pure: it never performs I/O and never mutates its input.
type Validator struct {
	criteria Criteria
}

func NewValidator(criteria Criteria) *Validator {
	if criteria == nil {
		criteria = DefaultCriteria()
	}

	return &Validator{criteria: criteria}
}

// Validate evaluates the stage's predicate. Stages without criteria pass.
func (v *Validator) Validate(stage string, result models.StageResult) models.StageGateResult {
	predicate, ok := v.criteria[stage]
	if !ok {
		return models.StageGateResult{
			Stage:  stage,
			Passed: true,
			Reason: ReasonNoCriteria,
		}
	}

	passed, reason, details := predicate(result)

	return models.StageGateResult{
		Stage:             stage,
		Passed:            passed,
		Reason:            reason,
		ValidationDetails: details,
	}
}

// DefaultCriteria is the canonical criteria table keyed by the standard
// stage names.
func DefaultCriteria() Criteria {
	return Criteria{
		models.StageModelResolution: ModelResolved,
		models.StageDataBinding:     RequiredSourcesBound,
		models.StageSimulation:      SimulationCompleted,
	}
}

// ModelResolved passes when the resolution stage produced a selected model.
func ModelResolved(result models.StageResult) (bool, string, map[string]any) {
	payload, ok := result.Payload.(*models.ResolutionResult)
	if !ok {
		return false, unexpectedPayload(result), nil
	}

	details := map[string]any{
		"status":        string(payload.Status),
		"selectedModel": payload.SelectedModel != nil,
	}

	if payload.SelectedModel == nil {
		return false, "No model selected", details
	}

	details["modelId"] = payload.SelectedModel.ModelID

	return true, "Model " + payload.SelectedModel.ModelID + " selected", details
}

// RequiredSourcesBound passes when the binding stage succeeded and every
// required source was bound. Optional sources never block.
func RequiredSourcesBound(result models.StageResult) (bool, string, map[string]any) {
	payload, ok := result.Payload.(*models.BindingResult)
	if !ok {
		return false, unexpectedPayload(result), nil
	}

	details := map[string]any{
		"status":                 string(payload.Status),
		"success_rate":           payload.SuccessRate,
		"required_sources_count": payload.RequiredSourcesCount,
		"optional_sources_count": payload.OptionalSourcesCount,
		"required_success_rate":  payload.RequiredSuccessRate,
	}

	if payload.Status != models.StageStatusSuccess {
		return false, fmt.Sprintf("Data binding status is %q", payload.Status), details
	}

	if payload.RequiredSourcesCount == 0 {
		return true, "No required data sources", details
	}

	if payload.RequiredSuccessRate >= 1.0 {
		return true, fmt.Sprintf("All %d required data sources bound", payload.RequiredSourcesCount), details
	}

	return false, fmt.Sprintf("Required data sources incomplete: %d/%d bound (%.0f%%)",
		payload.RequiredSuccessCount, payload.RequiredSourcesCount, payload.RequiredSuccessRate*100), details
}

// SimulationCompleted passes when the simulation reported completion.
func SimulationCompleted(result models.StageResult) (bool, string, map[string]any) {
	payload, ok := result.Payload.(*models.SimulationResult)
	if !ok {
		return false, unexpectedPayload(result), nil
	}

	details := map[string]any{
		"status":    string(payload.Status),
		"exit_code": payload.ExitCode,
	}

	if payload.Status != models.StageStatusCompleted {
		return false, fmt.Sprintf("Simulation status is %q", payload.Status), details
	}

	return true, "Simulation completed", details
}

func unexpectedPayload(result models.StageResult) string {
	if result.Payload == nil {
		return "Stage produced no result payload"
	}

	return fmt.Sprintf("Unexpected %s payload for stage %s", result.Payload.Kind(), result.Stage)
}
