// Package resolution implements the model-resolution stage.
package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/workdir"
)

const (
	HandlerID = "ModelResolutionHandler"

	ModelStatusReady = "ready"

	// SnapshotName is written to the inputs directory of the run.
	SnapshotName = "selected_model.json"
)

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger.With("module", "model_resolution")}
}

func (h *Handler) ID() string {
	return HandlerID
}

// Execute confirms a model is bound and its manifest exists. A goal without
// a model yields an error-status result for the gate to reject.
func (h *Handler) Execute(ctx context.Context, goal *models.Goal, execCtx *models.ExecutionContext) (models.StagePayload, error) {
	model := goal.SelectedModel
	if model == nil {
		h.logger.WarnContext(ctx, "Goal has no selected model", "goal_id", goal.GoalID)

		return &models.ResolutionResult{
			Status:    models.StageStatusError,
			HandlerID: HandlerID,
			Error:     models.ErrModelNotSelected.Error(),
		}, nil
	}

	manifestPath, err := filepath.Abs(model.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path %s: %w", model.ManifestPath, err)
	}

	info, err := os.Stat(manifestPath)
	if err != nil || info.IsDir() {
		return nil, &models.ManifestParsingError{
			Path: manifestPath,
			Err:  fmt.Errorf("%w: %s (model %s)", models.ErrManifestNotFound, manifestPath, model.ModelID),
		}
	}

	resolved := model.Clone()
	resolved.ManifestPath = manifestPath

	if execCtx != nil && execCtx.WorkDirectory != "" {
		snapshot := map[string]any{
			"goal_id":    goal.GoalID,
			"model":      resolved,
			"provenance": goal.SelectionProvenance,
		}

		if _, _, err := workdir.WriteJSON(filepath.Join(execCtx.WorkDirectory, workdir.InputsDir), SnapshotName, snapshot); err != nil {
			return nil, err
		}
	}

	h.logger.InfoContext(ctx, "Resolved model", "goal_id", goal.GoalID, "model_id", model.ModelID, "manifest", manifestPath)

	return &models.ResolutionResult{
		Status:        models.StageStatusSuccess,
		HandlerID:     HandlerID,
		SelectedModel: resolved,
		ManifestPath:  manifestPath,
		ModelStatus:   ModelStatusReady,
	}, nil
}
