package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dukex/goalgate/pkg/goal"
	"github.com/dukex/goalgate/pkg/log"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/schedule"
	"github.com/dukex/goalgate/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

// withApp builds the app for one command and closes it afterwards.
func withApp(module string, fn func(ctx context.Context, command *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		logger := log.WithModule(module)

		a, err := newApp(ctx, command, logger)
		if err != nil {
			return err
		}

		defer func() {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			if err := a.Close(closeCtx); err != nil {
				logger.Error("Failed to release resources", "error", err)
			}
		}()

		return fn(ctx, command, a)
	}
}

func goalArg(command *cli.Command) (string, error) {
	path := command.Args().First()
	if path == "" {
		return "", errors.New("goal file argument is required")
	}

	return path, nil
}

func loadGoal(path string, now time.Time) (*models.Goal, error) {
	g, err := goal.Load(path)
	if err != nil {
		return nil, err
	}

	return goal.Preprocess(g, now)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Select a model for a goal and execute its pipeline",
		ArgsUsage: "<goal.json>",
		Action: withApp("run", func(ctx context.Context, command *cli.Command, a *app) error {
			path, err := goalArg(command)
			if err != nil {
				return err
			}

			g, err := loadGoal(path, time.Now())
			if err != nil {
				return err
			}

			result, err := a.executor.ExecuteGoal(ctx, g)
			if err != nil {
				if stage, ok := models.FailedStage(err); ok {
					a.logger.ErrorContext(ctx, "Goal execution failed", "goal_id", g.GoalID, "failed_stage", stage)
				}

				return err
			}

			return writeJSON(command.Root().Writer, result)
		}),
	}
}

func selectCommand() *cli.Command {
	return &cli.Command{
		Name:      "select",
		Usage:     "Choose a model for a goal without executing it",
		ArgsUsage: "<goal.json>",
		Action: withApp("select", func(ctx context.Context, command *cli.Command, a *app) error {
			path, err := goalArg(command)
			if err != nil {
				return err
			}

			g, err := loadGoal(path, time.Now())
			if err != nil {
				return err
			}

			sel, err := a.engine.SelectModel(ctx, g)
			if err != nil {
				return err
			}

			return writeJSON(command.Root().Writer, web.SelectionResponse{
				GoalID:     g.GoalID,
				GoalType:   g.GoalType,
				Model:      sel.Model,
				Provenance: sel.Provenance,
			})
		}),
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the goal API over HTTP",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		},
		Action: withApp("api", func(ctx context.Context, command *cli.Command, a *app) error {
			api := NewAPI(
				a.logger,
				a.engine.Catalog(),
				a.engine,
				a.executor,
				a.repository,
				a.gatherer,
				map[string]web.HealthChecker{
					"repository": a.repository,
					"aas":        a.aas,
				},
			)

			return api.Start(ctx, command.Int("port"))
		}),
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "Run a goal repeatedly on a cron expression",
		ArgsUsage: "<goal.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "cron",
				Usage:    "Cron expression (e.g. '0 * * * *' or '@every 15m')",
				Required: true,
				Sources:  cli.EnvVars("SCHEDULE_CRON"),
			},
			&cli.StringFlag{
				Name:  "id",
				Usage: "Schedule ID (defaults to the goal file name)",
			},
		},
		Action: withApp("schedule", func(ctx context.Context, command *cli.Command, a *app) error {
			path, err := goalArg(command)
			if err != nil {
				return err
			}

			// Fail on a broken goal file before waiting for the first tick.
			if _, err := loadGoal(path, time.Now()); err != nil {
				return err
			}

			id := command.String("id")
			if id == "" {
				id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			source := func(now time.Time) (*models.Goal, error) {
				return loadGoal(path, now)
			}

			s, err := schedule.NewGoalSchedule(id, command.String("cron"), source, a.executor, a.logger)
			if err != nil {
				return err
			}

			if err := s.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			return s.Stop(stopCtx)
		}),
	}
}

// runDirectories is printed by `runs --dirs`.
type runDirectories struct {
	GoalID      string   `json:"goalId"`
	Directories []string `json:"directories"`
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:      "runs",
		Usage:     "List the recorded executions of a goal",
		ArgsUsage: "<goalId>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dirs",
				Usage: "List the goal's work directories under --work-root instead of the stored records",
			},
		},
		Action: withApp("runs", func(ctx context.Context, command *cli.Command, a *app) error {
			goalID := command.Args().First()
			if goalID == "" {
				return errors.New("goal ID argument is required")
			}

			if command.Bool("dirs") {
				dirs, err := a.workdirs.List(goalID)
				if err != nil {
					return err
				}

				return writeJSON(command.Root().Writer, runDirectories{GoalID: goalID, Directories: dirs})
			}

			records, err := a.repository.ListExecutions(ctx, goalID)
			if err != nil {
				return err
			}

			summaries := make([]web.ExecutionSummary, 0, len(records))
			for _, r := range records {
				summaries = append(summaries, web.Summarize(r))
			}

			return writeJSON(command.Root().Writer, web.ExecutionListResponse{
				GoalID:     goalID,
				Executions: summaries,
				Total:      len(summaries),
			})
		}),
	}
}
