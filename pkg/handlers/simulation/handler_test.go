package simulation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dukex/goalgate/pkg/container"
	"github.com/dukex/goalgate/pkg/handlers/simulation"
	"github.com/dukex/goalgate/pkg/log"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/testutil"
	"github.com/dukex/goalgate/pkg/workdir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, spec container.Spec) (*container.Output, error)

func (f runnerFunc) Run(ctx context.Context, spec container.Spec) (*container.Output, error) {
	return f(ctx, spec)
}

func stdoutRunner(exitCode int, stdout, stderr string) runnerFunc {
	return func(context.Context, container.Spec) (*container.Output, error) {
		return &container.Output{ExitCode: exitCode, Stdout: []byte(stdout), Stderr: []byte(stderr), Duration: time.Second}, nil
	}
}

// newRun returns a goal with a bound model and a run whose binding stage
// produced one data file.
func newRun(t *testing.T) (*models.Goal, *models.ExecutionContext) {
	t.Helper()

	dir, err := workdir.NewManager(t.TempDir()).Create("goal3-001")
	require.NoError(t, err)

	goal := testutil.CreateTestGoal(testutil.WithSelectedModel(testutil.CreateTestModel()))
	execCtx := models.NewExecutionContext("exec-1", goal.GoalID, dir, time.Now())

	ordersPath, _, err := workdir.WriteJSON(filepath.Join(dir, workdir.InputsDir), "order_list.json", []any{})
	require.NoError(t, err)

	now := time.Now()
	execCtx.Record(models.NewStageResult(models.StageDataBinding, &models.BindingResult{
		Status:    models.StageStatusSuccess,
		HandlerID: "YamlBindingHandler",
		Sources: []models.SourceOutcome{
			{Name: "order_list", Type: models.SourceTypeAASProperty, Required: true, Path: ordersPath},
			{Name: "machines", Type: models.SourceTypeAASShellCollection, Error: "connection refused"},
		},
	}, now, now))

	return goal, execCtx
}

func TestExecute_Completed(t *testing.T) {
	t.Parallel()

	goal, execCtx := newRun(t)

	var seen container.Spec

	runner := runnerFunc(func(_ context.Context, spec container.Spec) (*container.Output, error) {
		seen = spec

		return &container.Output{
			Stdout: []byte("Loading /workspace/inputs/order_list.json\n" +
				`{"predicted_completion_time": "2025-03-05T10:00:00Z", "confidence": 0.92, "simulator_type": "NSGA-II"}` + "\n"),
			Stderr:   []byte("warning: slow solver\n"),
			Duration: 3 * time.Second,
		}, nil
	})

	payload, err := simulation.NewHandler(runner, log.Discard()).Execute(context.Background(), goal, execCtx)
	require.NoError(t, err)

	result, ok := payload.(*models.SimulationResult)
	require.True(t, ok)
	assert.Equal(t, models.StageStatusCompleted, result.Status)
	assert.Equal(t, "factory-nsga2:latest", result.ContainerImage)
	assert.True(t, strings.HasPrefix(result.ExecutionID, goal.GoalID+"_"))

	assert.Equal(t, "2025-03-05T10:00:00Z", goal.Outputs["estimatedTime"])
	assert.InDelta(t, 0.92, goal.Outputs["confidence"], 0.0001)

	assert.Equal(t, "factory-nsga2:latest", seen.Image)
	assert.Equal(t, execCtx.WorkDirectory, seen.WorkDir)
	assert.Equal(t, "simulation-"+result.ExecutionID, seen.Name)
	assert.Equal(t, "Product-A", seen.Env["PRODUCTTYPE"])
	assert.Equal(t, "100", seen.Env["QUANTITY"])
	assert.Equal(t, goal.GoalID, seen.Env["GOAL_ID"])
	assert.Equal(t, "/workspace/simulation_input.json", seen.Env["SIMULATION_INPUT"])
	assert.Equal(t, "/workspace/outputs", seen.Env["RESULT_PATH"])

	data, err := os.ReadFile(filepath.Join(execCtx.WorkDirectory, simulation.InputName))
	require.NoError(t, err)

	var input simulation.Input
	require.NoError(t, json.Unmarshal(data, &input))
	assert.Equal(t, map[string]string{"order_list": "/workspace/inputs/order_list.json"}, input.DataFiles)
	assert.Equal(t, "/workspace", input.WorkDirectory)
	assert.Equal(t, "NSGA2SimulatorModel", input.ModelID)
	assert.InDelta(t, 100.0, input.Parameters["quantity"], 0.0001)

	logData, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "=== STDOUT ===")
	assert.Contains(t, string(logData), "=== STDERR ===\nwarning: slow solver")

	_, err = os.Stat(filepath.Join(execCtx.WorkDirectory, workdir.OutputsDir, simulation.OutputName))
	assert.NoError(t, err)
}

func TestExecute_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		runner   runnerFunc
		check    func(t *testing.T, err error)
		writeLog bool
	}{
		{
			name:   "non-zero exit",
			runner: stdoutRunner(2, `{"status": "partial"}`, "solver diverged"),
			check: func(t *testing.T, err error) {
				t.Helper()

				var simErr *models.SimulationExecutionError
				require.ErrorAs(t, err, &simErr)
				assert.Equal(t, 2, simErr.ExitCode)
				assert.Contains(t, simErr.Reason, "solver diverged")
			},
			writeLog: true,
		},
		{
			name:   "no structured output",
			runner: stdoutRunner(0, "done, no json here\n", ""),
			check: func(t *testing.T, err error) {
				t.Helper()

				assert.True(t, models.IsSimulationExecutionError(err))
				assert.ErrorIs(t, err, models.ErrNoStructuredOutput)
			},
			writeLog: true,
		},
		{
			name: "timeout",
			runner: func(context.Context, container.Spec) (*container.Output, error) {
				return &container.Output{ExitCode: -1, Stdout: []byte("iteration 1\n")}, fmt.Errorf("%w after 10m", models.ErrContainerTimeout)
			},
			check: func(t *testing.T, err error) {
				t.Helper()

				assert.True(t, models.IsSimulationExecutionError(err))
				assert.ErrorIs(t, err, models.ErrContainerTimeout)
				assert.Contains(t, err.Error(), "timed out")
			},
			writeLog: true,
		},
		{
			name: "docker missing",
			runner: func(context.Context, container.Spec) (*container.Output, error) {
				return nil, errors.New("exec: \"docker\": executable file not found in $PATH")
			},
			check: func(t *testing.T, err error) {
				t.Helper()

				assert.True(t, models.IsSimulationExecutionError(err))
				assert.Contains(t, err.Error(), "executable file not found")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			goal, execCtx := newRun(t)

			_, err := simulation.NewHandler(tt.runner, log.Discard()).Execute(context.Background(), goal, execCtx)
			require.Error(t, err)
			tt.check(t, err)

			logs, globErr := filepath.Glob(filepath.Join(execCtx.WorkDirectory, workdir.LogsDir, "container_logs_*.txt"))
			require.NoError(t, globErr)

			if tt.writeLog {
				assert.Len(t, logs, 1)
			} else {
				assert.Empty(t, logs)
			}

			assert.Empty(t, goal.Outputs)
		})
	}
}

func TestExecute_ResultFile(t *testing.T) {
	t.Parallel()

	t.Run("merged into output", func(t *testing.T) {
		t.Parallel()

		goal, execCtx := newRun(t)

		runner := runnerFunc(func(_ context.Context, spec container.Spec) (*container.Output, error) {
			_, _, err := workdir.WriteJSON(filepath.Join(spec.WorkDir, workdir.OutputsDir), "goal3_result.json", map[string]any{
				"predicted_completion_time": "2025-03-07T12:00:00Z",
				"confidence":                0.5,
				"detailed_results":          map[string]any{"bottlenecks": []any{"M1"}},
			})
			require.NoError(t, err)

			return &container.Output{Stdout: []byte(`{"confidence": 0.95, "result_file": "/workspace/outputs/goal3_result.json"}` + "\n")}, nil
		})

		goal.OutputSpec = append(goal.OutputSpec, models.OutputSpec{Name: "bottlenecks", Datatype: models.DatatypeArray})

		_, err := simulation.NewHandler(runner, log.Discard()).Execute(context.Background(), goal, execCtx)
		require.NoError(t, err)

		assert.Equal(t, "2025-03-07T12:00:00Z", goal.Outputs["estimatedTime"])
		assert.InDelta(t, 0.95, goal.Outputs["confidence"], 0.0001)
		assert.Equal(t, []any{"M1"}, goal.Outputs["bottlenecks"])
	})

	t.Run("missing file after retries", func(t *testing.T) {
		t.Parallel()

		goal, execCtx := newRun(t)
		runner := stdoutRunner(0, `{"result_file": "outputs/never.json"}`, "")

		_, err := simulation.NewHandler(runner, log.Discard(), simulation.WithResultFileRetry(2, time.Millisecond)).
			Execute(context.Background(), goal, execCtx)
		require.Error(t, err)
		assert.True(t, models.IsSimulationExecutionError(err))
		assert.Contains(t, err.Error(), "never.json")
	})

	t.Run("path escaping the work directory", func(t *testing.T) {
		t.Parallel()

		goal, execCtx := newRun(t)
		runner := stdoutRunner(0, `{"result_file": "../../etc/passwd"}`, "")

		_, err := simulation.NewHandler(runner, log.Discard()).Execute(context.Background(), goal, execCtx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escapes")
	})
}

func TestExecute_RequiresModelAndImage(t *testing.T) {
	t.Parallel()

	goal, execCtx := newRun(t)
	goal.SelectedModel = nil

	_, err := simulation.NewHandler(stdoutRunner(0, "{}", ""), log.Discard()).Execute(context.Background(), goal, execCtx)
	assert.ErrorIs(t, err, models.ErrModelNotSelected)

	goal, execCtx = newRun(t)
	goal.SelectedModel.ContainerImage = ""

	_, err = simulation.NewHandler(stdoutRunner(0, "{}", ""), log.Discard()).Execute(context.Background(), goal, execCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no container image")
}
