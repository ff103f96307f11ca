package models

import (
	"errors"
	"fmt"
)

var (
	// ErrModelRequired indicates a goal needs a model but none was bound before execution.
	ErrModelRequired = errors.New("goal requires a model but none was selected")

	// ErrModelNotSelected indicates the resolution stage found no selected model on the goal.
	ErrModelNotSelected = errors.New("no model selected")

	ErrManifestNotFound = errors.New("manifest not found")

	// ErrUnknownStage indicates a pipeline stage has no bound handler.
	ErrUnknownStage = errors.New("no handler registered for stage")

	// ErrNoStructuredOutput indicates the container printed no standalone JSON object.
	ErrNoStructuredOutput = errors.New("no structured JSON output found")

	ErrContainerTimeout = errors.New("container execution timed out")

	// ErrPropertyNotFound indicates a submodel has no element with the requested idShort.
	ErrPropertyNotFound = errors.New("property not found")

	ErrExecutionNotFound = errors.New("execution not found")
)

// ConfigError is raised when startup configuration cannot be loaded.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// SelectionError is raised when no model can be chosen for a goal.
type SelectionError struct {
	GoalID   string
	GoalType string
	Reason   string
	Err      error
}

func (e *SelectionError) Error() string {
	msg := fmt.Sprintf("model selection failed for goal %s (type %s): %s", e.GoalID, e.GoalType, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *SelectionError) Unwrap() error {
	return e.Err
}

// ManifestParsingError is raised for malformed data-binding manifests.
type ManifestParsingError struct {
	Path   string
	Source string // data source name, empty for document-level problems
	Err    error
}

func (e *ManifestParsingError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("manifest %s: data source %q: %v", e.Path, e.Source, e.Err)
	}

	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestParsingError) Unwrap() error {
	return e.Err
}

// DataSourceError is raised when one data source cannot be fetched.
type DataSourceError struct {
	Source string
	Type   string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source %s (%s): %v", e.Source, e.Type, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// SimulationExecutionError is raised when the simulation container fails.
type SimulationExecutionError struct {
	Image    string
	ExitCode int
	Reason   string
	Err      error
}

func (e *SimulationExecutionError) Error() string {
	msg := fmt.Sprintf("simulation %s failed (exit code %d): %s", e.Image, e.ExitCode, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *SimulationExecutionError) Unwrap() error {
	return e.Err
}

// StageGateFailureError is raised when a stage's output fails its gate.
type StageGateFailureError struct {
	Stage   string
	Reason  string
	Details map[string]any
}

func (e *StageGateFailureError) Error() string {
	return fmt.Sprintf("stage gate failed for %s: %s", e.Stage, e.Reason)
}

// RuntimeExecutionError wraps every abort of a goal run.
type RuntimeExecutionError struct {
	GoalID        string
	FailedStage   string
	WorkDirectory string
	Err           error
}

func (e *RuntimeExecutionError) Error() string {
	return fmt.Sprintf("goal %s failed at stage %s: %v", e.GoalID, e.FailedStage, e.Err)
}

func (e *RuntimeExecutionError) Unwrap() error {
	return e.Err
}

func IsConfigError(err error) bool {
	var target *ConfigError

	return errors.As(err, &target)
}

func IsSelectionError(err error) bool {
	var target *SelectionError

	return errors.As(err, &target)
}

func IsManifestParsingError(err error) bool {
	var target *ManifestParsingError

	return errors.As(err, &target)
}

func IsDataSourceError(err error) bool {
	var target *DataSourceError

	return errors.As(err, &target)
}

func IsSimulationExecutionError(err error) bool {
	var target *SimulationExecutionError

	return errors.As(err, &target)
}

func IsStageGateFailure(err error) bool {
	var target *StageGateFailureError

	return errors.As(err, &target)
}

// FailedStage extracts the failing stage name from a run error.
func FailedStage(err error) (string, bool) {
	var target *RuntimeExecutionError
	if errors.As(err, &target) {
		return target.FailedStage, true
	}

	return "", false
}
