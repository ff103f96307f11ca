package models

import "time"

type StageLogStatus string

const (
	StageLogCompleted StageLogStatus = "completed"
	StageLogFailed    StageLogStatus = "failed"
)

// StageLogEntry is one line of the execution log.
type StageLogEntry struct {
	Stage       string           `json:"stage"`
	Status      StageLogStatus   `json:"status"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt time.Time        `json:"completedAt"`
	Gate        *StageGateResult `json:"gate,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// ExecutionResult bundles everything a successful run produced.
type ExecutionResult struct {
	ExecutionID   string          `json:"executionId"`
	Goal          *Goal           `json:"goal"`
	Log           []StageLogEntry `json:"executionLog"`
	StageResults  []StageResult   `json:"stageResults"`
	WorkDirectory string          `json:"workDirectory"`
	Artifacts     []string        `json:"artifacts,omitempty"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   time.Time       `json:"completedAt"`
}

// ExecutionRecord is the persisted summary of a run, successful or not.
type ExecutionRecord struct {
	ID            string          `json:"id"`
	GoalID        string          `json:"goalId"`
	GoalType      string          `json:"goalType"`
	State         ExecutionState  `json:"state"`
	FailedStage   string          `json:"failedStage,omitempty"`
	Error         string          `json:"error,omitempty"`
	WorkDirectory string          `json:"workDirectory"`
	Goal          *Goal           `json:"goal"`
	Log           []StageLogEntry `json:"executionLog"`
	StageResults  []StageResult   `json:"stageResults"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   time.Time       `json:"completedAt"`
}
