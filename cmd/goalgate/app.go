package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/goalgate/pkg/aas"
	"github.com/dukex/goalgate/pkg/cmd"
	"github.com/dukex/goalgate/pkg/container"
	"github.com/dukex/goalgate/pkg/eventbus"
	"github.com/dukex/goalgate/pkg/metrics"
	"github.com/dukex/goalgate/pkg/otelhelper"
	"github.com/dukex/goalgate/pkg/persistence"
	"github.com/dukex/goalgate/pkg/protocol"
	"github.com/dukex/goalgate/pkg/registry"
	"github.com/dukex/goalgate/pkg/selection"
	"github.com/dukex/goalgate/pkg/stagegate"
	"github.com/dukex/goalgate/pkg/workdir"
	"github.com/dukex/goalgate/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "goalgate"

// app holds everything a command needs, built once from the global flags.
type app struct {
	logger     *slog.Logger
	engine     *selection.Engine
	registry   *registry.Registry
	executor   *workflow.Executor
	repository persistence.ExecutionRepository
	workdirs   *workdir.Manager
	eventBus   eventbus.EventBus
	aas        *aas.Client
	gatherer   prometheus.Gatherer
	shutdown   otelhelper.Shutdown
}

func newApp(ctx context.Context, command *cli.Command, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collectorsSet, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a.gatherer = reg

	a.engine, err = cmd.NewEngine(cmd.EngineFiles{
		Registry: command.String("registry"),
		Ontology: command.String("ontology"),
		Rules:    command.String("rules"),
	}, logger, selection.WithObserver(collectorsSet))
	if err != nil {
		return nil, err
	}

	a.aas = aas.NewClient(command.String("aas-url"), logger)

	a.registry, err = cmd.NewRegistry(logger, command.String("plugins-path"), protocol.Dependencies{
		Logger:   logger,
		AAS:      a.aas,
		Runner:   container.NewDockerRunner(command.String("docker-bin"), command.Duration("simulation-timeout"), logger),
		Observer: collectorsSet,
	})
	if err != nil {
		return nil, err
	}

	a.repository, err = cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, err
	}

	a.eventBus, err = cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return nil, errors.Join(err, a.Close(ctx))
	}

	tracer := otelhelper.NoopTracer()

	if command.Bool("tracing") {
		var t trace.Tracer

		t, a.shutdown, err = otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to set up tracing: %w", err), a.Close(ctx))
		}

		tracer = t
	}

	opts := []workflow.Option{
		workflow.WithPreparer(selection.NewPreparer(a.engine, logger)),
		workflow.WithRepository(a.repository),
		workflow.WithMetrics(collectorsSet),
		workflow.WithTracer(tracer),
	}

	if a.eventBus != nil {
		opts = append(opts, workflow.WithPublisher(a.eventBus))
	}

	a.workdirs = workdir.NewManager(command.String("work-root"))
	a.executor = workflow.NewExecutor(
		a.registry,
		stagegate.NewValidator(nil),
		a.workdirs,
		logger,
		opts...,
	)

	return a, nil
}

// Close releases the store, the event bus and the tracer provider.
func (a *app) Close(ctx context.Context) error {
	var errs []error

	if a.repository != nil {
		if err := a.repository.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close persistence: %w", err))
		}
	}

	if a.eventBus != nil {
		if err := a.eventBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event bus: %w", err))
		}
	}

	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracing: %w", err))
		}
	}

	return errors.Join(errs...)
}
