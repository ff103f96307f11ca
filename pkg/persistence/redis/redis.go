// Package redis provides Redis-backed persistence for execution records.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "goalgate"

	connectTimeout = 5 * time.Second
)

// Persistence keeps each record as a JSON string and indexes runs per goal
// in a sorted set scored by start time.
type Persistence struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewPersistence connects to the redis:// or rediss:// URL and verifies the
// connection.
func NewPersistence(ctx context.Context, logger *slog.Logger, url string) (*Persistence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	p := NewWithClient(redis.NewClient(opts), logger)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := p.HealthCheck(pingCtx); err != nil {
		_ = p.client.Close()

		return nil, err
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return p, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, logger *slog.Logger) *Persistence {
	return &Persistence{
		client: client,
		prefix: DefaultPrefix,
		logger: logger.With("module", "redis_persistence"),
	}
}

func (p *Persistence) executionKey(id string) string {
	return p.prefix + ":execution:" + id
}

func (p *Persistence) goalKey(goalID string) string {
	return p.prefix + ":goal:" + goalID + ":executions"
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}

	return nil
}

func (p *Persistence) SaveExecution(ctx context.Context, record *models.ExecutionRecord) error {
	if err := persistence.ValidateID(record.ID); err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return persistence.NewExecutionError("Save", record.ID, fmt.Errorf("failed to marshal record: %w", err))
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.executionKey(record.ID), data, 0)
		pipe.ZAdd(ctx, p.goalKey(record.GoalID), redis.Z{
			Score:  float64(record.StartedAt.UnixMilli()),
			Member: record.ID,
		})

		return nil
	})
	if err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	return nil
}

func (p *Persistence) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	if err := persistence.ValidateID(id); err != nil {
		return nil, persistence.NewExecutionError("Get", id, err)
	}

	data, err := p.client.Get(ctx, p.executionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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
	ids, err := p.client.ZRevRange(ctx, p.goalKey(goalID), 0, -1).Result()
	if err != nil {
		return nil, persistence.NewGoalExecutionsError("List", goalID, err)
	}

	records := make([]*models.ExecutionRecord, 0, len(ids))

	for _, id := range ids {
		record, err := p.GetExecution(ctx, id)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				p.logger.WarnContext(ctx, "Dangling execution index entry", "goal_id", goalID, "execution_id", id)

				continue
			}

			return nil, err
		}

		records = append(records, record)
	}

	persistence.SortRecent(records)

	return records, nil
}
