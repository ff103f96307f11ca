// Package simulation implements the simulation stage: it runs the selected
// model's container over the bound data and maps its output onto the goal.
package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/goalgate/pkg/container"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/workdir"
	"github.com/google/uuid"
)

const (
	HandlerID = "SimulationHandler"

	InputName  = "simulation_input.json"
	OutputName = "simulation_output.json"

	// ResultFileKey in the structured output points at a file with more results.
	ResultFileKey = "result_file"

	DefaultResultFileAttempts = 5
	DefaultResultFileInterval = 200 * time.Millisecond

	stderrTail = 512
)

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
	unsafeEnvChars  = regexp.MustCompile(`[^A-Z0-9_]`)
)

type Option func(*Handler)

// WithResultFileRetry sets how often a referenced result file is read before
// giving up and the wait between attempts.
func WithResultFileRetry(attempts int, interval time.Duration) Option {
	return func(h *Handler) {
		if attempts > 0 {
			h.resultAttempts = attempts
		}

		if interval > 0 {
			h.resultInterval = interval
		}
	}
}

type Handler struct {
	runner         container.Runner
	logger         *slog.Logger
	resultAttempts int
	resultInterval time.Duration
}

func NewHandler(runner container.Runner, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		runner:         runner,
		logger:         logger.With("module", "simulation"),
		resultAttempts: DefaultResultFileAttempts,
		resultInterval: DefaultResultFileInterval,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *Handler) ID() string {
	return HandlerID
}

// Input is the descriptor written to simulation_input.json. Paths are as seen
// from inside the container.
type Input struct {
	GoalID        string              `json:"goal_id"`
	GoalType      string              `json:"goal_type"`
	ExecutionID   string              `json:"execution_id"`
	ModelID       string              `json:"model_id"`
	Parameters    map[string]any      `json:"parameters"`
	OutputSpec    []models.OutputSpec `json:"output_spec"`
	DataFiles     map[string]string   `json:"data_files"`
	WorkDirectory string              `json:"work_directory"`
}

func (h *Handler) Execute(ctx context.Context, goal *models.Goal, execCtx *models.ExecutionContext) (models.StagePayload, error) {
	model := goal.SelectedModel
	if model == nil {
		return nil, &models.SimulationExecutionError{Reason: "goal has no selected model", Err: models.ErrModelNotSelected}
	}

	if model.ContainerImage == "" {
		return nil, &models.SimulationExecutionError{Reason: fmt.Sprintf("model %s has no container image", model.ModelID)}
	}

	executionID := goal.GoalID + "_" + uuid.NewString()[:8]
	logger := h.logger.With("goal_id", goal.GoalID, "execution_id", executionID, "image", model.ContainerImage)

	input := h.buildInput(goal, execCtx, executionID)
	if len(input.DataFiles) == 0 {
		logger.WarnContext(ctx, "No bound data files available for simulation")
	}

	inputPath, _, err := workdir.WriteJSON(execCtx.WorkDirectory, InputName, input)
	if err != nil {
		return nil, err
	}

	spec := container.Spec{
		Name:    "simulation-" + unsafeNameChars.ReplaceAllString(executionID, "-"),
		Image:   model.ContainerImage,
		WorkDir: execCtx.WorkDirectory,
		Env:     environment(goal),
	}

	out, runErr := h.runner.Run(ctx, spec)

	logPath := filepath.Join(execCtx.WorkDirectory, workdir.LogsDir, "container_logs_"+executionID+".txt")
	if out != nil {
		if err := writeContainerLog(logPath, out); err != nil {
			logger.WarnContext(ctx, "Failed to write container log", "error", err)
		}
	}

	if runErr == nil && out == nil {
		runErr = errors.New("runner returned no output")
	}

	if runErr != nil {
		simErr := &models.SimulationExecutionError{Image: model.ContainerImage, ExitCode: -1, Reason: "container run failed", Err: runErr}
		if errors.Is(runErr, models.ErrContainerTimeout) {
			simErr.Reason = "container timed out"
		}

		return nil, simErr
	}

	if out.ExitCode != 0 {
		return nil, &models.SimulationExecutionError{
			Image:    model.ContainerImage,
			ExitCode: out.ExitCode,
			Reason:   tail(strings.TrimSpace(string(out.Stderr))),
		}
	}

	output, ok := ParseStructuredOutput(out.Stdout)
	if !ok {
		return nil, &models.SimulationExecutionError{
			Image:  model.ContainerImage,
			Reason: "container output could not be parsed",
			Err:    models.ErrNoStructuredOutput,
		}
	}

	if err := h.mergeResultFile(ctx, execCtx.WorkDirectory, output); err != nil {
		return nil, &models.SimulationExecutionError{Image: model.ContainerImage, Reason: "result file unreadable", Err: err}
	}

	if _, _, err := workdir.WriteJSON(filepath.Join(execCtx.WorkDirectory, workdir.OutputsDir), OutputName, output); err != nil {
		return nil, err
	}

	mapped := MapOutputs(output, goal.OutputSpec)
	for name, value := range mapped {
		goal.SetOutput(name, value)
	}

	logger.InfoContext(ctx, "Simulation completed", "duration", out.Duration, "mapped_outputs", len(mapped))

	return &models.SimulationResult{
		Status:         models.StageStatusCompleted,
		HandlerID:      HandlerID,
		ContainerImage: model.ContainerImage,
		ExecutionID:    executionID,
		ExitCode:       out.ExitCode,
		InputPath:      inputPath,
		LogPath:        logPath,
		Output:         output,
		MappedOutputs:  mapped,
		Duration:       out.Duration,
	}, nil
}

func (h *Handler) buildInput(goal *models.Goal, execCtx *models.ExecutionContext, executionID string) Input {
	params := make(map[string]any, len(goal.Parameters))
	for _, p := range goal.Parameters {
		params[p.Key] = p.Value
	}

	files := map[string]string{}

	if b, ok := execCtx.BindingResult(); ok {
		for name, path := range b.Files() {
			files[name] = containerPath(execCtx.WorkDirectory, path)
		}
	}

	return Input{
		GoalID:        goal.GoalID,
		GoalType:      goal.GoalType,
		ExecutionID:   executionID,
		ModelID:       goal.SelectedModel.ModelID,
		Parameters:    params,
		OutputSpec:    goal.OutputSpec,
		DataFiles:     files,
		WorkDirectory: container.WorkspacePath,
	}
}

// containerPath maps a host path under the work directory to the mount point.
func containerPath(workDir, path string) string {
	rel, err := filepath.Rel(workDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}

	return container.WorkspacePath + "/" + filepath.ToSlash(rel)
}

// environment exposes goal parameters as upper-case variables next to the
// fixed run variables.
func environment(goal *models.Goal) map[string]string {
	env := make(map[string]string, len(goal.Parameters)+4)

	for _, p := range goal.Parameters {
		key := unsafeEnvChars.ReplaceAllString(strings.ToUpper(p.Key), "_")
		env[key] = p.String()
	}

	env["GOAL_ID"] = goal.GoalID
	env["GOAL_TYPE"] = goal.GoalType
	env["SIMULATION_INPUT"] = container.WorkspacePath + "/" + InputName
	env["RESULT_PATH"] = container.WorkspacePath + "/" + workdir.OutputsDir

	return env
}

// mergeResultFile reads the file named by result_file, retrying while the
// simulator may still be flushing it, and adds its fields to output.
// Fields already present in output win.
func (h *Handler) mergeResultFile(ctx context.Context, workDir string, output map[string]any) error {
	name, ok := output[ResultFileKey].(string)
	if !ok || name == "" {
		return nil
	}

	path, err := resolveResultFile(workDir, name)
	if err != nil {
		return err
	}

	var extra map[string]any

	read := func() error {
		data, err := os.ReadFile(path) // #nosec G304 -- confined to the work directory
		if err != nil {
			return err
		}

		if err := json.Unmarshal(data, &extra); err != nil {
			return err
		}

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(h.resultInterval), uint64(h.resultAttempts-1)), // #nosec G115
		ctx,
	)

	if err := backoff.Retry(read, policy); err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	for k, v := range extra {
		if _, exists := output[k]; !exists {
			output[k] = v
		}
	}

	return nil
}

func resolveResultFile(workDir, name string) (string, error) {
	name = strings.TrimPrefix(name, container.WorkspacePath+"/")
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("result file %s must be relative to the work directory", name)
	}

	path := filepath.Join(workDir, filepath.Clean(name))

	rel, err := filepath.Rel(workDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("result file %s escapes the work directory", name)
	}

	return path, nil
}

func writeContainerLog(path string, out *container.Output) error {
	var b strings.Builder

	fmt.Fprintf(&b, "exit_code: %d\n", out.ExitCode)
	fmt.Fprintf(&b, "duration: %s\n\n", out.Duration)
	b.WriteString("=== STDOUT ===\n")
	b.Write(out.Stdout)
	b.WriteString("\n=== STDERR ===\n")
	b.Write(out.Stderr)
	b.WriteString("\n")

	return os.WriteFile(path, []byte(b.String()), 0600)
}

func tail(s string) string {
	if s == "" {
		return "non-zero exit code"
	}

	if len(s) > stderrTail {
		return "..." + s[len(s)-stderrTail:]
	}

	return s
}
