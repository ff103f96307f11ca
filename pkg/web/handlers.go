package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dukex/goalgate/pkg/catalog"
	"github.com/dukex/goalgate/pkg/goal"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/persistence"
	"github.com/dukex/goalgate/pkg/selection"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// GoalExecutor runs a prepared goal through its pipeline.
type GoalExecutor interface {
	ExecuteGoal(ctx context.Context, goal *models.Goal) (*models.ExecutionResult, error)
}

// HealthChecker is any dependency that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	catalog    *catalog.Catalog
	selector   selection.Selector
	executor   GoalExecutor
	repository persistence.ExecutionRepository
	validator  *validator.Validate
	checks     map[string]HealthChecker
	now        func() time.Time
}

func NewAPIHandlers(
	cat *catalog.Catalog,
	selector selection.Selector,
	executor GoalExecutor,
	repository persistence.ExecutionRepository,
	validator *validator.Validate,
	checks map[string]HealthChecker,
) *APIHandlers {
	return &APIHandlers{
		catalog:    cat,
		selector:   selector,
		executor:   executor,
		repository: repository,
		validator:  validator,
		checks:     checks,
		now:        time.Now,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	checkers := fiber.Map{}

	for name, checker := range h.checks {
		if err := checker.HealthCheck(c.Context()); err != nil {
			checkers[name] = err.Error()
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable

			continue
		}

		checkers[name] = "ok"
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checkers":  checkers,
		"timestamp": h.now().UTC(),
	})
}

func (h *APIHandlers) GetModels(c fiber.Ctx) error {
	return c.JSON(ModelsResponse{
		Source: h.catalog.Source(),
		Models: h.catalog.Models(),
	})
}

func (h *APIHandlers) SelectModel(c fiber.Ctx) error {
	g, err := h.decodeGoal(c)
	if err != nil {
		return handleGoalError(c, err)
	}

	sel, err := h.selector.SelectModel(c.Context(), g)
	if err != nil {
		return handleGoalError(c, err)
	}

	return c.JSON(SelectionResponse{
		GoalID:     g.GoalID,
		GoalType:   g.GoalType,
		Model:      sel.Model,
		Provenance: sel.Provenance,
	})
}

func (h *APIHandlers) ExecuteGoal(c fiber.Ctx) error {
	g, err := h.decodeGoal(c)
	if err != nil {
		return handleGoalError(c, err)
	}

	result, err := h.executor.ExecuteGoal(c.Context(), g)
	if err != nil {
		return handleGoalError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	record, err := h.repository.GetExecution(c.Context(), id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return internalError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) ListGoalExecutions(c fiber.Ctx) error {
	var req ListExecutionsRequest
	if err := c.Bind().Query(&req); err != nil {
		return badRequest(c, "Invalid query parameters")
	}

	req.GoalID = c.Params("goalId")

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	records, err := h.repository.ListExecutions(c.Context(), req.GoalID)
	if err != nil {
		return internalError(c, err)
	}

	summaries := make([]ExecutionSummary, 0, len(records))

	for _, record := range records {
		if req.State != "" && string(record.State) != req.State {
			continue
		}

		summaries = append(summaries, Summarize(record))
	}

	total := len(summaries)
	if req.Limit > 0 && len(summaries) > req.Limit {
		summaries = summaries[:req.Limit]
	}

	return c.JSON(ExecutionListResponse{
		GoalID:     req.GoalID,
		Executions: summaries,
		Total:      total,
	})
}

// decodeGoal parses the body as a goal document and resolves its tokens.
func (h *APIHandlers) decodeGoal(c fiber.Ctx) (*models.Goal, error) {
	g, err := goal.Decode(c.Body())
	if err != nil {
		return nil, err
	}

	return goal.Preprocess(g, h.now())
}
