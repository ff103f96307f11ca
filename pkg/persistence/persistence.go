// Package persistence provides the storage abstraction for execution records.
package persistence

import (
	"context"
	"sort"

	"github.com/dukex/goalgate/pkg/models"
)

// ExecutionRepository stores one record per goal run.
type ExecutionRepository interface {
	// SaveExecution inserts or replaces the record with the same ID.
	SaveExecution(ctx context.Context, record *models.ExecutionRecord) error

	GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error)

	// ListExecutions returns the runs of a goal, most recent first.
	ListExecutions(ctx context.Context, goalID string) ([]*models.ExecutionRecord, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// SortRecent orders records by start time, newest first, then by ID.
func SortRecent(records []*models.ExecutionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].StartedAt.Equal(records[j].StartedAt) {
			return records[i].StartedAt.After(records[j].StartedAt)
		}

		return records[i].ID < records[j].ID
	})
}
