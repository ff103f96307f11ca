// Package workflow runs a goal's declared pipeline stages in order, gating
// each stage before the next one may start.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/goalgate/pkg/eventbus"
	"github.com/dukex/goalgate/pkg/events"
	"github.com/dukex/goalgate/pkg/metrics"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/otelhelper"
	"github.com/dukex/goalgate/pkg/persistence"
	"github.com/dukex/goalgate/pkg/protocol"
	"github.com/dukex/goalgate/pkg/stagegate"
	"github.com/dukex/goalgate/pkg/workdir"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HandlerResolver returns the handler bound to a stage name.
type HandlerResolver interface {
	Handler(stage string) (protocol.StageHandler, error)
}

// GoalPreparer binds a model onto goals that need one.
type GoalPreparer interface {
	Prepare(ctx context.Context, goal *models.Goal) (*models.Goal, error)
}

type Option func(*Executor)

// WithPreparer runs model selection for goals that require a model and
// arrive without one.
func WithPreparer(p GoalPreparer) Option {
	return func(e *Executor) {
		e.preparer = p
	}
}

func WithRepository(r persistence.ExecutionRepository) Option {
	return func(e *Executor) {
		e.repository = r
	}
}

func WithPublisher(p eventbus.EventPublisher) Option {
	return func(e *Executor) {
		e.publisher = p
	}
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// Executor holds no per-run state; one instance can run many goals
// concurrently, each in its own work directory.
type Executor struct {
	handlers   HandlerResolver
	validator  *stagegate.Validator
	workdirs   *workdir.Manager
	logger     *slog.Logger
	preparer   GoalPreparer
	repository persistence.ExecutionRepository
	publisher  eventbus.EventPublisher
	metrics    *metrics.Collectors
	tracer     trace.Tracer
	now        func() time.Time
}

func NewExecutor(handlers HandlerResolver, validator *stagegate.Validator, workdirs *workdir.Manager, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		handlers:  handlers,
		validator: validator,
		workdirs:  workdirs,
		logger:    logger.With("module", "goal_executor"),
		publisher: eventbus.Nop{},
		tracer:    otelhelper.NoopTracer(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// run is the state of one execution.
type run struct {
	goal      *models.Goal
	execCtx   *models.ExecutionContext
	log       []models.StageLogEntry
	rejected  *models.StageResult
	startedAt time.Time
	logger    *slog.Logger
}

// ExecuteGoal runs every stage of goal.metadata.pipelineStages in order. The
// caller's goal is never modified; the returned result carries the run's copy
// with the outputs handlers produced. Any abort is a
// *models.RuntimeExecutionError naming the failed stage. The work directory is
// kept in both cases.
func (e *Executor) ExecuteGoal(ctx context.Context, goal *models.Goal) (*models.ExecutionResult, error) {
	if goal == nil {
		return nil, errors.New("goal is required")
	}

	r := &run{
		goal:      goal.Clone(),
		startedAt: e.now().UTC(),
	}

	dir, err := e.workdirs.Create(r.goal.GoalID)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare goal %s: %w", r.goal.GoalID, err)
	}

	executionID := uuid.NewString()
	r.execCtx = models.NewExecutionContext(executionID, r.goal.GoalID, dir, r.startedAt)
	r.logger = e.logger.With("goal_id", r.goal.GoalID, "execution_id", executionID)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "goal.execute",
		attribute.String(otelhelper.GoalIDKey, r.goal.GoalID),
		attribute.String(otelhelper.GoalTypeKey, r.goal.GoalType),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.WorkDirKey, dir),
	)
	defer span.End()

	r.logger.InfoContext(ctx, "Starting goal execution", "stages", r.goal.Metadata.PipelineStages, "work_directory", dir)

	if err := e.preflight(ctx, r); err != nil {
		return nil, e.fail(ctx, span, r, models.StageModelSelection, err)
	}

	r.execCtx.State = models.ExecutionRunning

	e.publish(ctx, r, events.GoalExecutionStarted{
		BaseEvent:      events.NewBaseEvent(events.GoalExecutionStartedEvent, r.goal.GoalID),
		ExecutionID:    executionID,
		GoalType:       r.goal.GoalType,
		PipelineStages: r.goal.Metadata.PipelineStages,
		WorkDirectory:  dir,
	})

	for _, stage := range r.goal.Metadata.PipelineStages {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(ctx, span, r, stage, err)
		}

		if err := e.runStage(ctx, r, stage); err != nil {
			return nil, e.fail(ctx, span, r, stage, err)
		}
	}

	return e.complete(ctx, r), nil
}

// preflight enforces that goals requiring a model carry one before any
// runtime stage executes, running selection first when a preparer is set.
func (e *Executor) preflight(ctx context.Context, r *run) error {
	if !r.goal.Metadata.RequiresModel {
		return nil
	}

	if r.goal.SelectedModel == nil && e.preparer != nil {
		prepared, err := e.preparer.Prepare(ctx, r.goal)
		if err != nil {
			return err
		}

		r.goal = prepared

		if r.goal.SelectedModel != nil && r.goal.SelectionProvenance != nil {
			e.publish(ctx, r, events.GoalModelSelected{
				BaseEvent:  events.NewBaseEvent(events.GoalModelSelectedEvent, r.goal.GoalID),
				GoalType:   r.goal.GoalType,
				ModelID:    r.goal.SelectedModel.ModelID,
				RuleName:   r.goal.SelectionProvenance.RuleName,
				Evidence:   r.goal.SelectionProvenance.Evidence,
				Confidence: r.goal.SelectionProvenance.Confidence,
			})
		}
	}

	if r.goal.SelectedModel == nil {
		return models.ErrModelRequired
	}

	r.logger.InfoContext(ctx, "Model bound to goal", "model_id", r.goal.SelectedModel.ModelID)

	return nil
}

func (e *Executor) runStage(ctx context.Context, r *run, stage string) error {
	r.execCtx.CurrentStage = stage
	logger := r.logger.With("stage", stage)

	handler, err := e.handlers.Handler(stage)
	if err != nil {
		return err
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "goal.stage",
		attribute.String(otelhelper.StageKey, stage),
		attribute.String(otelhelper.HandlerIDKey, handler.ID()),
	)
	defer span.End()

	logger.InfoContext(ctx, "Executing stage", "handler", handler.ID())

	startedAt := e.now().UTC()
	payload, err := handler.Execute(ctx, r.goal, r.execCtx)
	completedAt := e.now().UTC()

	if err == nil && payload == nil {
		err = fmt.Errorf("handler %s returned no result", handler.ID())
	}

	if err != nil {
		otelhelper.SetError(span, err)
		e.metrics.StageFinished(stage, string(models.StageStatusError), completedAt.Sub(startedAt))
		r.log = append(r.log, models.StageLogEntry{
			Stage:       stage,
			Status:      models.StageLogFailed,
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			Error:       err.Error(),
		})

		return err
	}

	result := models.NewStageResult(stage, payload, startedAt, completedAt)
	gate := e.validator.Validate(stage, result)
	e.metrics.StageFinished(stage, string(result.Status), completedAt.Sub(startedAt))

	entry := models.StageLogEntry{
		Stage:       stage,
		Status:      models.StageLogCompleted,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Gate:        &gate,
	}

	if !gate.Passed {
		gateErr := &models.StageGateFailureError{Stage: stage, Reason: gate.Reason, Details: gate.ValidationDetails}

		e.metrics.GateFailed(stage)
		otelhelper.SetError(span, gateErr)

		entry.Status = models.StageLogFailed
		entry.Error = gateErr.Error()
		r.log = append(r.log, entry)
		r.rejected = &result

		logger.WarnContext(ctx, "Stage rejected by gate", "reason", gate.Reason, "details", gate.ValidationDetails)

		return gateErr
	}

	r.execCtx.Record(result)
	r.log = append(r.log, entry)

	logger.InfoContext(ctx, "Stage passed gate", "status", result.Status, "reason", gate.Reason)

	e.publish(ctx, r, events.GoalStageCompleted{
		BaseEvent:   events.NewBaseEvent(events.GoalStageCompletedEvent, r.goal.GoalID),
		ExecutionID: r.execCtx.ID,
		Stage:       stage,
		HandlerID:   result.HandlerID,
		Status:      string(result.Status),
		DurationMs:  completedAt.Sub(startedAt).Milliseconds(),
	})

	return nil
}

func (e *Executor) complete(ctx context.Context, r *run) *models.ExecutionResult {
	completedAt := e.now().UTC()
	r.execCtx.State = models.ExecutionCompleted
	r.execCtx.CurrentStage = ""

	artifacts, err := workdir.Artifacts(r.execCtx.WorkDirectory)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to list artifacts", "error", err)
	}

	result := &models.ExecutionResult{
		ExecutionID:   r.execCtx.ID,
		Goal:          r.goal,
		Log:           r.log,
		StageResults:  r.execCtx.Results(),
		WorkDirectory: r.execCtx.WorkDirectory,
		Artifacts:     artifacts,
		StartedAt:     r.startedAt,
		CompletedAt:   completedAt,
	}

	e.save(ctx, r, models.ExecutionCompleted, "", nil, completedAt)
	e.metrics.ExecutionFinished(r.goal.GoalType, string(models.ExecutionCompleted))

	e.publish(ctx, r, events.GoalExecutionCompleted{
		BaseEvent:      events.NewBaseEvent(events.GoalExecutionCompletedEvent, r.goal.GoalID),
		ExecutionID:    r.execCtx.ID,
		DurationMs:     completedAt.Sub(r.startedAt).Milliseconds(),
		StagesExecuted: len(r.execCtx.StageOrder),
		Outputs:        r.goal.Outputs,
		WorkDirectory:  r.execCtx.WorkDirectory,
	})

	r.logger.InfoContext(ctx, "Goal execution completed", "stages", len(r.execCtx.StageOrder), "outputs", len(r.goal.Outputs))

	return result
}

// fail records the abort on disk, in the repository and on the bus, then
// returns the error callers see.
func (e *Executor) fail(ctx context.Context, span trace.Span, r *run, stage string, cause error) error {
	failedAt := e.now().UTC()
	r.execCtx.State = models.ExecutionFailed

	otelhelper.SetError(span, cause, attribute.String(otelhelper.StageKey, stage))
	r.logger.ErrorContext(ctx, "Goal execution failed", "stage", stage, "error", cause)

	if err := workdir.WriteFailureLog(r.execCtx.WorkDirectory, stage, cause, r.execCtx.Results(), failedAt); err != nil {
		r.logger.ErrorContext(ctx, "Failed to write failure log", "error", err)
	}

	e.save(ctx, r, models.ExecutionFailed, stage, cause, failedAt)
	e.metrics.ExecutionFinished(r.goal.GoalType, string(models.ExecutionFailed))

	var duration time.Duration
	if n := len(r.log); n > 0 {
		duration = r.log[n-1].CompletedAt.Sub(r.log[n-1].StartedAt)
	}

	e.publish(ctx, r, events.GoalStageFailed{
		BaseEvent:   events.NewBaseEvent(events.GoalStageFailedEvent, r.goal.GoalID),
		ExecutionID: r.execCtx.ID,
		Stage:       stage,
		Error:       cause.Error(),
		GateFailure: models.IsStageGateFailure(cause),
		DurationMs:  duration.Milliseconds(),
	})

	e.publish(ctx, r, events.GoalExecutionFailed{
		BaseEvent:      events.NewBaseEvent(events.GoalExecutionFailedEvent, r.goal.GoalID),
		ExecutionID:    r.execCtx.ID,
		FailedStage:    stage,
		Error:          cause.Error(),
		DurationMs:     failedAt.Sub(r.startedAt).Milliseconds(),
		StagesExecuted: len(r.execCtx.StageOrder),
		WorkDirectory:  r.execCtx.WorkDirectory,
	})

	return &models.RuntimeExecutionError{
		GoalID:        r.goal.GoalID,
		FailedStage:   stage,
		WorkDirectory: r.execCtx.WorkDirectory,
		Err:           cause,
	}
}

// save stores the run's record. Storage problems are logged, never surfaced:
// the run outcome stands on its own.
func (e *Executor) save(ctx context.Context, r *run, state models.ExecutionState, failedStage string, cause error, at time.Time) {
	if e.repository == nil {
		return
	}

	results := r.execCtx.Results()
	if r.rejected != nil {
		results = append(results, *r.rejected)
	}

	record := &models.ExecutionRecord{
		ID:            r.execCtx.ID,
		GoalID:        r.goal.GoalID,
		GoalType:      r.goal.GoalType,
		State:         state,
		FailedStage:   failedStage,
		WorkDirectory: r.execCtx.WorkDirectory,
		Goal:          r.goal,
		Log:           r.log,
		StageResults:  results,
		StartedAt:     r.startedAt,
		CompletedAt:   at,
	}

	if cause != nil {
		record.Error = cause.Error()
	}

	// Saving must not be skipped because the run itself was cancelled.
	saveCtx := context.WithoutCancel(ctx)

	if err := e.repository.SaveExecution(saveCtx, record); err != nil {
		r.logger.ErrorContext(ctx, "Failed to save execution record", "error", err)
	}
}

func (e *Executor) publish(ctx context.Context, r *run, event eventbus.Event) {
	if err := e.publisher.Publish(context.WithoutCancel(ctx), r.goal.GoalID, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
