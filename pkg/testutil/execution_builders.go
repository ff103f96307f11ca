package testutil

import (
	"time"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/google/uuid"
)

// CreateTestExecutionRecord creates a completed run record with a resolution
// stage result, with values that can be overridden.
func CreateTestExecutionRecord(overrides ...func(*models.ExecutionRecord)) *models.ExecutionRecord {
	model := CreateTestModel()
	goal := CreateTestGoal(WithSelectedModel(model))
	started := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	completed := started.Add(2 * time.Second)

	record := &models.ExecutionRecord{
		ID:            "exec-" + uuid.NewString()[:8],
		GoalID:        goal.GoalID,
		GoalType:      goal.GoalType,
		State:         models.ExecutionCompleted,
		WorkDirectory: "/tmp/runs/" + goal.GoalID,
		Goal:          goal,
		Log: []models.StageLogEntry{{
			Stage:       models.StageModelResolution,
			Status:      models.StageLogCompleted,
			StartedAt:   started,
			CompletedAt: completed,
			Gate:        &models.StageGateResult{Stage: models.StageModelResolution, Passed: true, Reason: "Model resolved"},
		}},
		StageResults: []models.StageResult{
			models.NewStageResult(models.StageModelResolution, &models.ResolutionResult{
				Status:        models.StageStatusSuccess,
				HandlerID:     "ModelResolutionHandler",
				SelectedModel: model,
				ManifestPath:  model.ManifestPath,
				ModelStatus:   "ready",
			}, started, completed),
		},
		StartedAt:   started,
		CompletedAt: completed,
	}

	for _, override := range overrides {
		override(record)
	}

	return record
}
