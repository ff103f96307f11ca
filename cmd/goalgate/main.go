package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/goalgate/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		log.WithModule("goalgate").Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "goalgate",
		Usage:                 "Select simulation models for goals and run them through gated pipelines",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "registry",
				Usage:   "Path to the model registry (model_registry.json)",
				Value:   "config/model_registry.json",
				Sources: cli.EnvVars("MODEL_REGISTRY"),
			},
			&cli.StringFlag{
				Name:    "ontology",
				Usage:   "Path to the ontology fact file",
				Value:   "config/ontology.yaml",
				Sources: cli.EnvVars("ONTOLOGY_FILE"),
			},
			&cli.StringFlag{
				Name:    "rules",
				Usage:   "Path to the selection rule table",
				Value:   "config/rules.yaml",
				Sources: cli.EnvVars("RULES_FILE"),
			},
			&cli.StringFlag{
				Name:    "work-root",
				Usage:   "Directory holding one work directory per goal run",
				Value:   "./runs",
				Sources: cli.EnvVars("WORK_ROOT"),
			},
			&cli.StringFlag{
				Name:    "aas-url",
				Usage:   "Base URL of the Asset Administration Shell server",
				Value:   "http://127.0.0.1:5001",
				Sources: cli.EnvVars("AAS_SERVER_URL"),
			},
			&cli.StringFlag{
				Name:    "docker-bin",
				Usage:   "Docker-compatible CLI used to run simulation containers",
				Value:   "docker",
				Sources: cli.EnvVars("DOCKER_BIN"),
			},
			&cli.DurationFlag{
				Name:    "simulation-timeout",
				Usage:   "Wall-clock limit for one simulation container",
				Value:   10 * time.Minute,
				Sources: cli.EnvVars("SIMULATION_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Execution store URL (file://, redis://, postgres://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (none, gochannel, kafka)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers for the kafka event bus",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing handler plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			runCommand(),
			selectCommand(),
			serveCommand(),
			scheduleCommand(),
			runsCommand(),
		},
	}
}
