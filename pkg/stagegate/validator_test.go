package stagegate_test

import (
	"testing"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/stagegate"
	"github.com/dukex/goalgate/pkg/testutil"
	"github.com/stretchr/testify/assert"
)

func bindingResult(p *models.BindingResult) models.StageResult {
	return models.StageResult{Stage: models.StageDataBinding, Status: p.Status, Payload: p}
}

func TestValidate_DataBinding(t *testing.T) {
	t.Parallel()

	v := stagegate.NewValidator(nil)

	tests := []struct {
		name    string
		payload *models.BindingResult
		passed  bool
	}{
		{
			name: "one of two required sources failed",
			payload: &models.BindingResult{
				Status:               models.StageStatusSuccess,
				TotalSources:         3,
				SuccessfulSources:    1,
				SuccessRate:          1.0 / 3.0,
				RequiredSourcesCount: 2,
				OptionalSourcesCount: 1,
				RequiredSuccessCount: 1,
				RequiredSuccessRate:  0.5,
			},
			passed: false,
		},
		{
			name: "optional failure does not block",
			payload: &models.BindingResult{
				Status:               models.StageStatusSuccess,
				TotalSources:         3,
				SuccessfulSources:    2,
				SuccessRate:          2.0 / 3.0,
				RequiredSourcesCount: 2,
				OptionalSourcesCount: 1,
				RequiredSuccessCount: 2,
				RequiredSuccessRate:  1.0,
			},
			passed: true,
		},
		{
			name: "no required sources passes regardless of success rate",
			payload: &models.BindingResult{
				Status:               models.StageStatusSuccess,
				TotalSources:         2,
				SuccessfulSources:    0,
				OptionalSourcesCount: 2,
			},
			passed: true,
		},
		{
			name: "error status fails",
			payload: &models.BindingResult{
				Status:               models.StageStatusError,
				RequiredSourcesCount: 0,
			},
			passed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gate := v.Validate(models.StageDataBinding, bindingResult(tt.payload))
			assert.Equal(t, tt.passed, gate.Passed, gate.Reason)
			assert.Equal(t, models.StageDataBinding, gate.Stage)
			assert.NotEmpty(t, gate.Reason)
			assert.Equal(t, tt.payload.RequiredSourcesCount, gate.ValidationDetails["required_sources_count"])
		})
	}
}

func TestValidate_ModelResolution(t *testing.T) {
	t.Parallel()

	v := stagegate.NewValidator(nil)

	gate := v.Validate(models.StageModelResolution, models.StageResult{
		Stage:   models.StageModelResolution,
		Payload: &models.ResolutionResult{Status: models.StageStatusSuccess, SelectedModel: testutil.CreateTestModel()},
	})
	assert.True(t, gate.Passed)
	assert.Equal(t, "NSGA2SimulatorModel", gate.ValidationDetails["modelId"])

	gate = v.Validate(models.StageModelResolution, models.StageResult{
		Stage:   models.StageModelResolution,
		Payload: &models.ResolutionResult{Status: models.StageStatusSuccess},
	})
	assert.False(t, gate.Passed)
}

func TestValidate_Simulation(t *testing.T) {
	t.Parallel()

	v := stagegate.NewValidator(nil)

	completed := v.Validate(models.StageSimulation, models.StageResult{
		Stage:   models.StageSimulation,
		Payload: &models.SimulationResult{Status: models.StageStatusCompleted},
	})
	assert.True(t, completed.Passed)

	failed := v.Validate(models.StageSimulation, models.StageResult{
		Stage:   models.StageSimulation,
		Payload: &models.SimulationResult{Status: models.StageStatusError, ExitCode: 1},
	})
	assert.False(t, failed.Passed)
	assert.Equal(t, 1, failed.ValidationDetails["exit_code"])
}

func TestValidate_UnknownStagePasses(t *testing.T) {
	t.Parallel()

	gate := stagegate.NewValidator(nil).Validate("reporting", models.StageResult{Stage: "reporting"})
	assert.True(t, gate.Passed)
	assert.Equal(t, stagegate.ReasonNoCriteria, gate.Reason)
}

func TestValidate_PayloadMismatchFails(t *testing.T) {
	t.Parallel()

	gate := stagegate.NewValidator(nil).Validate(models.StageSimulation, models.StageResult{
		Stage:   models.StageSimulation,
		Payload: &models.BindingResult{Status: models.StageStatusSuccess},
	})
	assert.False(t, gate.Passed)
	assert.Contains(t, gate.Reason, "binding")

	gate = stagegate.NewValidator(nil).Validate(models.StageSimulation, models.StageResult{Stage: models.StageSimulation})
	assert.False(t, gate.Passed)
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	payload := &models.BindingResult{Status: models.StageStatusSuccess, RequiredSourcesCount: 1, RequiredSuccessRate: 1}
	result := bindingResult(payload)
	snapshot := *payload

	stagegate.NewValidator(nil).Validate(models.StageDataBinding, result)
	assert.Equal(t, snapshot, *payload)
}

func TestValidate_CustomCriteria(t *testing.T) {
	t.Parallel()

	criteria := stagegate.DefaultCriteria()
	criteria["dataBinding"] = stagegate.RequiredSourcesBound

	v := stagegate.NewValidator(criteria)
	gate := v.Validate("dataBinding", models.StageResult{
		Stage:   "dataBinding",
		Payload: &models.BindingResult{Status: models.StageStatusSuccess, RequiredSourcesCount: 1, RequiredSuccessRate: 0},
	})
	assert.False(t, gate.Passed)
}
