// Package web provides HTTP request and response types for the goal API.
package web

import (
	"time"

	"github.com/dukex/goalgate/pkg/models"
)

// ListExecutionsRequest holds the query of GET /goals/:goalId/executions.
type ListExecutionsRequest struct {
	GoalID string `query:"-"     validate:"required"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=500"`
	State  string `query:"state" validate:"omitempty,oneof=running completed failed"`
}

// ModelsResponse lists the model registry.
type ModelsResponse struct {
	Source string                    `json:"source"`
	Models []*models.ModelDescriptor `json:"models"`
}

// SelectionResponse is returned by POST /goals/select.
type SelectionResponse struct {
	GoalID     string                      `json:"goalId"`
	GoalType   string                      `json:"goalType"`
	Model      *models.ModelDescriptor     `json:"selectedModel"`
	Provenance models.SelectionProvenance `json:"selectionProvenance"`
}

// ExecutionSummary is the list view of a persisted run.
type ExecutionSummary struct {
	ID            string                `json:"id"`
	GoalID        string                `json:"goalId"`
	State         models.ExecutionState `json:"state"`
	FailedStage   string                `json:"failedStage,omitempty"`
	Error         string                `json:"error,omitempty"`
	WorkDirectory string                `json:"workDirectory"`
	StartedAt     time.Time             `json:"startedAt"`
	CompletedAt   time.Time             `json:"completedAt"`
}

// ExecutionListResponse is returned by GET /goals/:goalId/executions.
type ExecutionListResponse struct {
	GoalID     string             `json:"goalId"`
	Executions []ExecutionSummary `json:"executions"`
	Total      int                `json:"total"`
}

// Summarize drops the stage payloads of a record.
func Summarize(record *models.ExecutionRecord) ExecutionSummary {
	return ExecutionSummary{
		ID:            record.ID,
		GoalID:        record.GoalID,
		State:         record.State,
		FailedStage:   record.FailedStage,
		Error:         record.Error,
		WorkDirectory: record.WorkDirectory,
		StartedAt:     record.StartedAt,
		CompletedAt:   record.CompletedAt,
	}
}
