// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"

	"github.com/dukex/goalgate/pkg/models"
)

// ErrExecutionNotFound indicates no record exists for the given execution ID.
var ErrExecutionNotFound = models.ErrExecutionNotFound

// ExecutionError wraps execution-record errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "Get", "Save", "List")
	ExecutionID string
	GoalID      string
	Err         error
}

func (e *ExecutionError) Error() string {
	target := e.ExecutionID
	if e.GoalID != "" && target == "" {
		target = "of goal " + e.GoalID
	}

	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, target, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for execution errors.
func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

func NewGoalExecutionsError(op, goalID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, GoalID: goalID, Err: err}
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// ValidateID rejects identifiers that are unsafe as file names or keys.
func ValidateID(id string) error {
	if id == "" {
		return errors.New("ID cannot be empty")
	}

	if len(id) > 255 {
		return errors.New("ID is too long")
	}

	for _, r := range id {
		if r == '/' || r == '\\' || r == 0 {
			return errors.New("ID contains invalid characters")
		}
	}

	if id == "." || id == ".." {
		return errors.New("ID contains invalid characters")
	}

	return nil
}
