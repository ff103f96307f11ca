package mocks

import (
	"context"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockStageHandler is a mock implementation of protocol.StageHandler interface.
type MockStageHandler struct {
	mock.Mock
}

func (m *MockStageHandler) ID() string {
	args := m.Called()

	return args.String(0)
}

func (m *MockStageHandler) Execute(ctx context.Context, goal *models.Goal, execCtx *models.ExecutionContext) (models.StagePayload, error) {
	args := m.Called(ctx, goal, execCtx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(models.StagePayload), args.Error(1)
}
