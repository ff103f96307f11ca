package web

import (
	"errors"

	"github.com/dukex/goalgate/pkg/goal"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// ExecutionProblem is the body returned when a goal run aborts.
type ExecutionProblem struct {
	*problems.DefaultProblem

	GoalID        string `json:"goalId"`
	FailedStage   string `json:"failedStage"`
	WorkDirectory string `json:"workDirectory,omitempty"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleGoalError maps selection and execution failures onto problem bodies.
func handleGoalError(c fiber.Ctx, err error) error {
	var runErr *models.RuntimeExecutionError

	switch {
	case errors.Is(err, goal.ErrInvalidGoal), errors.Is(err, goal.ErrUnknownToken):
		return badRequest(c, err.Error())

	case errors.As(err, &runErr):
		problem := &ExecutionProblem{
			DefaultProblem: problems.NewStatusProblem(422).
				WithInstance(c.Path()).
				WithType("execution_failed").
				WithDetail(err.Error()),
			GoalID:        runErr.GoalID,
			FailedStage:   runErr.FailedStage,
			WorkDirectory: runErr.WorkDirectory,
		}

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case models.IsSelectionError(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("selection_failed").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")

	default:
		return internalError(c, err)
	}
}
