package events_test

import (
	"encoding/json"
	"testing"

	"github.com/dukex/goalgate/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	t.Parallel()

	a := events.NewBaseEvent(events.GoalExecutionStartedEvent, "goal3-001")
	b := events.NewBaseEvent(events.GoalExecutionStartedEvent, "goal3-001")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "goal3-001", a.GoalID)
	assert.Equal(t, events.GoalExecutionStartedEvent, a.Type)
	assert.False(t, a.Timestamp.IsZero())
	assert.NotNil(t, a.Metadata)
}

func TestEventTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event interface{ GetType() events.EventType }
		want  events.EventType
	}{
		{events.GoalModelSelected{}, events.GoalModelSelectedEvent},
		{events.GoalExecutionStarted{}, events.GoalExecutionStartedEvent},
		{events.GoalStageCompleted{}, events.GoalStageCompletedEvent},
		{events.GoalStageFailed{}, events.GoalStageFailedEvent},
		{events.GoalExecutionCompleted{}, events.GoalExecutionCompletedEvent},
		{events.GoalExecutionFailed{}, events.GoalExecutionFailedEvent},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.event.GetType())

			decoded, ok := events.New(tt.want)
			require.True(t, ok)
			assert.Equal(t, tt.want, decoded.(interface{ GetType() events.EventType }).GetType())
		})
	}

	_, ok := events.New("workflow.triggered")
	assert.False(t, ok)
}

func TestGoalExecutionFailed_JSON(t *testing.T) {
	t.Parallel()

	event := events.GoalExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.GoalExecutionFailedEvent, "goal3-001"),
		ExecutionID: "exec-1",
		FailedStage: "simulation",
		Error:       "no structured JSON output found",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "goal3-001", raw["goal_id"])
	assert.Equal(t, "simulation", raw["failed_stage"])
	assert.Equal(t, string(events.GoalExecutionFailedEvent), raw["type"])
}
