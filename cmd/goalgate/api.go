package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/goalgate/pkg/catalog"
	"github.com/dukex/goalgate/pkg/persistence"
	"github.com/dukex/goalgate/pkg/selection"
	"github.com/dukex/goalgate/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	logger     *slog.Logger
	catalog    *catalog.Catalog
	selector   selection.Selector
	executor   web.GoalExecutor
	repository persistence.ExecutionRepository
	gatherer   prometheus.Gatherer
	checks     map[string]web.HealthChecker
	validate   *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	cat *catalog.Catalog,
	selector selection.Selector,
	executor web.GoalExecutor,
	repository persistence.ExecutionRepository,
	gatherer prometheus.Gatherer,
	checks map[string]web.HealthChecker,
) *API {
	return &API{
		logger:     logger,
		catalog:    cat,
		selector:   selector,
		executor:   executor,
		repository: repository,
		gatherer:   gatherer,
		checks:     checks,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.catalog, a.selector, a.executor, a.repository, a.validate, a.checks)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Goalgate API")
	})

	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	app.Get("/models", handlers.GetModels)

	g := app.Group("/goals")
	g.Post("/select", handlers.SelectModel)
	g.Post("/execute", handlers.ExecuteGoal)
	g.Get("/:goalId/executions", handlers.ListGoalExecutions)

	app.Get("/executions/:id", handlers.GetExecution)

	return app
}

// Start serves until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()
	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":" + strconv.Itoa(port))
	}()

	a.logger.InfoContext(ctx, "API server started", "port", port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info("Shutting down API server")

		return app.ShutdownWithContext(context.WithoutCancel(ctx))
	}
}
