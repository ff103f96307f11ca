// Package protocol defines the contracts between the goal executor and its
// pluggable stage handlers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/goalgate/pkg/aas"
	"github.com/dukex/goalgate/pkg/container"
	"github.com/dukex/goalgate/pkg/models"
)

// StageHandler performs one pipeline stage for a goal.
type StageHandler interface {
	// ID identifies the handler in stage results and logs.
	ID() string

	// Execute runs the stage. It may set outputs on goal and read earlier
	// stage results from execCtx. Returning an error aborts the run.
	Execute(ctx context.Context, goal *models.Goal, execCtx *models.ExecutionContext) (models.StagePayload, error)
}

// StageHandlerFactory creates handlers and describes them.
type StageHandlerFactory interface {
	Create(config map[string]any, deps Dependencies) (StageHandler, error)

	ID() string
	Name() string
	Description() string

	// Stage is the pipeline stage the handler is bound to by default.
	Stage() string
}

// AASClient is the part of an AAS server the binding stage reads.
type AASClient interface {
	GetSubmodelProperty(ctx context.Context, submodelID, propertyPath string) (any, error)
	ListShells(ctx context.Context) ([]aas.Shell, error)
}

// SourceObserver is notified of every data-source fetch.
type SourceObserver interface {
	SourceFetched(sourceType string, required, ok bool)
}

// Dependencies are the shared collaborators handed to factories.
type Dependencies struct {
	Logger   *slog.Logger
	AAS      AASClient
	Runner   container.Runner
	Observer SourceObserver
}
