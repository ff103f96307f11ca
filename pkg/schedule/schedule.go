// Package schedule runs a goal repeatedly on a cron expression.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/robfig/cron/v3"
)

// GoalSource produces a fresh goal for every tick, so time tokens resolve
// at run time.
type GoalSource func(now time.Time) (*models.Goal, error)

// GoalRunner executes one goal.
type GoalRunner interface {
	ExecuteGoal(ctx context.Context, goal *models.Goal) (*models.ExecutionResult, error)
}

type GoalSchedule struct {
	ID       string
	CronExpr string
	source   GoalSource
	runner   GoalRunner
	cron     *cron.Cron
	logger   *slog.Logger

	mu   sync.Mutex
	runs int
}

func NewGoalSchedule(id, cronExpr string, source GoalSource, runner GoalRunner, logger *slog.Logger) (*GoalSchedule, error) {
	s := &GoalSchedule{
		ID:       id,
		CronExpr: cronExpr,
		source:   source,
		runner:   runner,
		logger: logger.With(
			"module", "goal_schedule",
			"id", id,
			"cron", cronExpr,
		),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *GoalSchedule) Validate() error {
	if s.ID == "" {
		return errors.New("schedule ID is required")
	}

	if s.CronExpr == "" {
		return errors.New("schedule cron expression is required")
	}

	if _, err := cron.ParseStandard(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	if s.source == nil || s.runner == nil {
		return errors.New("schedule needs a goal source and a runner")
	}

	return nil
}

// Start registers the job and returns immediately. Overlapping ticks are
// skipped while a run is still in progress.
func (s *GoalSchedule) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting goal schedule")

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	id, err := s.cron.AddFunc(s.CronExpr, func() { s.run(ctx) })
	if err != nil {
		return fmt.Errorf("failed to add cron job for schedule %s: %w", s.ID, err)
	}

	s.logger.DebugContext(ctx, "Added cron job", "entry", id)
	s.cron.Start()

	return nil
}

func (s *GoalSchedule) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	goal, err := s.source(time.Now())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load scheduled goal", "error", err)

		return
	}

	logger := s.logger.With("goal_id", goal.GoalID)
	logger.InfoContext(ctx, "Cron job triggered")

	result, err := s.runner.ExecuteGoal(ctx, goal)
	if err != nil {
		stage, _ := models.FailedStage(err)
		logger.ErrorContext(ctx, "Scheduled goal failed", "failed_stage", stage, "error", err)

		return
	}

	logger.InfoContext(ctx, "Scheduled goal completed",
		"execution_id", result.ExecutionID,
		"work_directory", result.WorkDirectory)
}

// Runs reports how many ticks have fired.
func (s *GoalSchedule) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runs
}

// Stop halts the scheduler and waits for a running goal to finish or ctx to
// expire.
func (s *GoalSchedule) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping goal schedule")

	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
