// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/google/uuid"
)

// CreateTestGoal creates the goal3 production-time goal with default values that can be overridden.
func CreateTestGoal(overrides ...func(*models.Goal)) *models.Goal {
	goal := &models.Goal{
		GoalID:   "goal3-" + uuid.NewString()[:8],
		GoalType: "goal3_predict_production_time",
		Parameters: []models.Parameter{
			{Key: "productType", Value: "Product-A", Type: "string"},
			{Key: "quantity", Value: float64(100), Type: "number"},
		},
		OutputSpec: []models.OutputSpec{
			{Name: "estimatedTime", Datatype: models.DatatypeDatetime},
			{Name: "confidence", Datatype: models.DatatypeNumber},
		},
		Metadata: models.GoalMetadata{
			Category:      "Prediction",
			RequiresModel: true,
			PipelineStages: []string{
				models.StageModelResolution,
				models.StageDataBinding,
				models.StageSimulation,
			},
		},
	}

	for _, override := range overrides {
		override(goal)
	}

	return goal
}

// WithSelectedModel binds a model and provenance as the selector would.
func WithSelectedModel(model *models.ModelDescriptor) func(*models.Goal) {
	return func(g *models.Goal) {
		g.SelectedModel = model
		g.SelectionProvenance = &models.SelectionProvenance{
			RuleName:   "GoalPurposeMatch",
			EngineID:   "rule-based-selection",
			Evidence:   []string{"goalType==" + g.GoalType, "purpose==" + model.Purpose},
			Timestamp:  time.Now().UTC(),
			Confidence: 1.0,
		}
	}
}

// WithStages replaces the pipeline stages.
func WithStages(stages ...string) func(*models.Goal) {
	return func(g *models.Goal) {
		g.Metadata.PipelineStages = stages
	}
}

// CreateTestModel creates a registry model descriptor that can be overridden.
func CreateTestModel(overrides ...func(*models.ModelDescriptor)) *models.ModelDescriptor {
	model := &models.ModelDescriptor{
		ModelID:        "NSGA2SimulatorModel",
		Purpose:        "DeliveryPrediction",
		Version:        "1.0.0",
		ContainerImage: "factory-nsga2:latest",
		ManifestPath:   "config/manifests/nsga2_sources.yaml",
	}

	for _, override := range overrides {
		override(model)
	}

	return model
}
