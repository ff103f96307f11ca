package mocks

import (
	"context"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) SaveExecution(ctx context.Context, record *models.ExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionRecord), args.Error(1)
}

func (m *MockExecutionRepository) ListExecutions(ctx context.Context, goalID string) ([]*models.ExecutionRecord, error) {
	args := m.Called(ctx, goalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionRecord), args.Error(1)
}

func (m *MockExecutionRepository) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockExecutionRepository) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
