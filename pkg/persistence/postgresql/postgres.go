// Package postgresql provides PostgreSQL persistence for execution records.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/persistence"
	"github.com/dukex/goalgate/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // postgres driver
)

// Persistence implements the persistence layer for PostgreSQL. Queryable
// fields live in columns; the full record is kept as JSONB.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence connects, pings and migrates the database.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{db: database, logger: logger.With("module", "postgres_persistence")}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) SaveExecution(ctx context.Context, record *models.ExecutionRecord) error {
	if err := persistence.ValidateID(record.ID); err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return persistence.NewExecutionError("Save", record.ID, fmt.Errorf("failed to marshal record: %w", err))
	}

	var completedAt sql.NullTime
	if !record.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: record.CompletedAt, Valid: true}
	}

	query := `
		INSERT INTO executions (
			id, goal_id, goal_type, state, failed_stage, error_message,
			work_directory, record, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			goal_id = EXCLUDED.goal_id,
			goal_type = EXCLUDED.goal_type,
			state = EXCLUDED.state,
			failed_stage = EXCLUDED.failed_stage,
			error_message = EXCLUDED.error_message,
			work_directory = EXCLUDED.work_directory,
			record = EXCLUDED.record,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = p.db.ExecContext(ctx, query,
		record.ID,
		record.GoalID,
		record.GoalType,
		record.State,
		record.FailedStage,
		record.Error,
		record.WorkDirectory,
		recordJSON,
		record.StartedAt,
		completedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	return nil
}

func (p *Persistence) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	var data []byte

	err := p.db.QueryRowContext(ctx, "SELECT record FROM executions WHERE id = $1", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

func (p *Persistence) ListExecutions(ctx context.Context, goalID string) ([]*models.ExecutionRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT record FROM executions WHERE goal_id = $1 ORDER BY started_at DESC, id ASC", goalID)
	if err != nil {
		return nil, persistence.NewGoalExecutionsError("List", goalID, err)
	}
	defer rows.Close()

	records := []*models.ExecutionRecord{}

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, persistence.NewGoalExecutionsError("List", goalID, err)
		}

		var record models.ExecutionRecord
		if err := json.Unmarshal(data, &record); err != nil {
			p.logger.WarnContext(ctx, "Skipping unreadable execution record", "goal_id", goalID, "error", err)

			continue
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewGoalExecutionsError("List", goalID, err)
	}

	return records, nil
}
