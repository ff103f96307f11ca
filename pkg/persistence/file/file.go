// Package file provides file-based persistence for execution records.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/persistence"
)

const executionsDir = "executions"

// Persistence stores each execution record as <root>/executions/<id>.json.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates a file store rooted at root. A file:// prefix is accepted.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) dir() string {
	return filepath.Join(fp.root, executionsDir)
}

func (fp *Persistence) SaveExecution(_ context.Context, record *models.ExecutionRecord) error {
	if err := persistence.ValidateID(record.ID); err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return persistence.NewExecutionError("Save", record.ID, fmt.Errorf("failed to marshal record: %w", err))
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := os.MkdirAll(fp.dir(), 0750); err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	// Write-then-rename so readers never observe a partial file.
	path := filepath.Join(fp.dir(), record.ID+".json")
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	return nil
}

func (fp *Persistence) GetExecution(_ context.Context, id string) (*models.ExecutionRecord, error) {
	if err := persistence.ValidateID(id); err != nil {
		return nil, persistence.NewExecutionError("Get", id, err)
	}

	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return fp.read(id)
}

func (fp *Persistence) read(id string) (*models.ExecutionRecord, error) {
	data, err := os.ReadFile(filepath.Join(fp.dir(), id+".json")) // #nosec G304 -- id is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("Get", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("Get", id, err)
	}

	var record models.ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, persistence.NewExecutionError("Get", id, fmt.Errorf("failed to unmarshal record: %w", err))
	}

	return &record, nil
}

func (fp *Persistence) ListExecutions(_ context.Context, goalID string) ([]*models.ExecutionRecord, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	entries, err := os.ReadDir(fp.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ExecutionRecord{}, nil
		}

		return nil, persistence.NewGoalExecutionsError("List", goalID, err)
	}

	records := []*models.ExecutionRecord{}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		record, err := fp.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip invalid files
			continue
		}

		if record.GoalID == goalID {
			records = append(records, record)
		}
	}

	persistence.SortRecent(records)

	return records, nil
}
