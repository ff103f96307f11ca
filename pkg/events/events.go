// Package events defines the lifecycle notifications published while goals execute.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single topic every goal lifecycle event is published to.
const Topic = "goalgate.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	GoalModelSelectedEvent      EventType = "goal.model.selected"
	GoalExecutionStartedEvent   EventType = "goal.execution.started"
	GoalStageCompletedEvent     EventType = "goal.stage.completed"
	GoalStageFailedEvent        EventType = "goal.stage.failed"
	GoalExecutionCompletedEvent EventType = "goal.execution.completed"
	GoalExecutionFailedEvent    EventType = "goal.execution.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	GoalID    string         `json:"goal_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type GoalModelSelected struct {
	BaseEvent

	GoalType   string   `json:"goal_type"`
	ModelID    string   `json:"model_id"`
	RuleName   string   `json:"rule_name"`
	Evidence   []string `json:"evidence"`
	Confidence float64  `json:"confidence"`
}

func (e GoalModelSelected) GetType() EventType {
	return GoalModelSelectedEvent
}

type GoalExecutionStarted struct {
	BaseEvent

	ExecutionID    string   `json:"execution_id"`
	GoalType       string   `json:"goal_type"`
	PipelineStages []string `json:"pipeline_stages"`
	WorkDirectory  string   `json:"work_directory"`
}

func (e GoalExecutionStarted) GetType() EventType {
	return GoalExecutionStartedEvent
}

type GoalStageCompleted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Stage       string `json:"stage"`
	HandlerID   string `json:"handler_id"`
	Status      string `json:"status"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e GoalStageCompleted) GetType() EventType {
	return GoalStageCompletedEvent
}

type GoalStageFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Stage       string `json:"stage"`
	Error       string `json:"error"`
	GateFailure bool   `json:"gate_failure"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e GoalStageFailed) GetType() EventType {
	return GoalStageFailedEvent
}

type GoalExecutionCompleted struct {
	BaseEvent

	ExecutionID    string         `json:"execution_id"`
	DurationMs     int64          `json:"duration_ms"`
	StagesExecuted int            `json:"stages_executed"`
	Outputs        map[string]any `json:"outputs,omitempty"`
	WorkDirectory  string         `json:"work_directory"`
}

func (e GoalExecutionCompleted) GetType() EventType {
	return GoalExecutionCompletedEvent
}

type GoalExecutionFailed struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	FailedStage    string `json:"failed_stage"`
	Error          string `json:"error"`
	DurationMs     int64  `json:"duration_ms"`
	StagesExecuted int    `json:"stages_executed"`
	WorkDirectory  string `json:"work_directory"`
}

func (e GoalExecutionFailed) GetType() EventType {
	return GoalExecutionFailedEvent
}

func NewBaseEvent(eventType EventType, goalID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		GoalID:    goalID,
		Metadata:  make(map[string]any),
	}
}

// New returns an empty event value for eventType, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case GoalModelSelectedEvent:
		return &GoalModelSelected{}, true
	case GoalExecutionStartedEvent:
		return &GoalExecutionStarted{}, true
	case GoalStageCompletedEvent:
		return &GoalStageCompleted{}, true
	case GoalStageFailedEvent:
		return &GoalStageFailed{}, true
	case GoalExecutionCompletedEvent:
		return &GoalExecutionCompleted{}, true
	case GoalExecutionFailedEvent:
		return &GoalExecutionFailed{}, true
	default:
		return nil, false
	}
}
