package models

import (
	"time"
)

type ExecutionState string

const (
	ExecutionNotStarted ExecutionState = "not_started"
	ExecutionRunning    ExecutionState = "running"
	ExecutionCompleted  ExecutionState = "completed"
	ExecutionFailed     ExecutionState = "failed"
)

// ExecutionContext is the per-run mutable state owned by one goal execution.
type ExecutionContext struct {
	ID            string                 `json:"id"`
	GoalID        string                 `json:"goalId"`
	WorkDirectory string                 `json:"workDirectory"`
	State         ExecutionState         `json:"state"`
	CurrentStage  string                 `json:"currentStage,omitempty"`
	StageResults  map[string]StageResult `json:"stageResults"`
	StageOrder    []string               `json:"stageOrder"`
	StartedAt     time.Time              `json:"startedAt"`
}

func NewExecutionContext(id, goalID, workDirectory string, startedAt time.Time) *ExecutionContext {
	return &ExecutionContext{
		ID:            id,
		GoalID:        goalID,
		WorkDirectory: workDirectory,
		State:         ExecutionNotStarted,
		StageResults:  make(map[string]StageResult),
		StartedAt:     startedAt,
	}
}

// Record stores the result of a completed stage.
func (c *ExecutionContext) Record(result StageResult) {
	if c.StageResults == nil {
		c.StageResults = make(map[string]StageResult)
	}

	if _, exists := c.StageResults[result.Stage]; !exists {
		c.StageOrder = append(c.StageOrder, result.Stage)
	}

	c.StageResults[result.Stage] = result
}

// Results returns the recorded stage results in execution order.
func (c *ExecutionContext) Results() []StageResult {
	results := make([]StageResult, 0, len(c.StageOrder))
	for _, stage := range c.StageOrder {
		results = append(results, c.StageResults[stage])
	}

	return results
}

// ResolutionResult returns the most recent model-resolution payload, if any.
func (c *ExecutionContext) ResolutionResult() (*ResolutionResult, bool) {
	for i := len(c.StageOrder) - 1; i >= 0; i-- {
		if p, ok := c.StageResults[c.StageOrder[i]].Payload.(*ResolutionResult); ok {
			return p, true
		}
	}

	return nil, false
}

// BindingResult returns the most recent data-binding payload, if any.
func (c *ExecutionContext) BindingResult() (*BindingResult, bool) {
	for i := len(c.StageOrder) - 1; i >= 0; i-- {
		if p, ok := c.StageResults[c.StageOrder[i]].Payload.(*BindingResult); ok {
			return p, true
		}
	}

	return nil, false
}
