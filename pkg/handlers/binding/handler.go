// Package binding implements the data-binding stage: it reads the model's
// manifest and materializes every listed data source as a JSON file.
package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dukex/goalgate/pkg/manifest"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/protocol"
	"github.com/dukex/goalgate/pkg/workdir"
)

const (
	HandlerID = "YamlBindingHandler"

	// SummaryName is written to the outputs directory of the run.
	SummaryName = "binding_summary.json"
)

type Option func(*Handler)

func WithObserver(o protocol.SourceObserver) Option {
	return func(h *Handler) {
		h.observer = o
	}
}

type Handler struct {
	client   protocol.AASClient
	logger   *slog.Logger
	observer protocol.SourceObserver
}

func NewHandler(client protocol.AASClient, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		client: client,
		logger: logger.With("module", "data_binding"),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *Handler) ID() string {
	return HandlerID
}

// Execute fetches every source of the manifest. Per-source failures are
// recorded, not returned; the result has error status only when every source
// failed. A missing or malformed manifest aborts the stage.
func (h *Handler) Execute(ctx context.Context, goal *models.Goal, execCtx *models.ExecutionContext) (models.StagePayload, error) {
	manifestPath := manifestPathFor(goal, execCtx)
	if manifestPath == "" {
		return nil, &models.ManifestParsingError{Err: fmt.Errorf("%w: goal %s has no resolved manifest", models.ErrManifestNotFound, goal.GoalID)}
	}

	m, err := manifest.ParseFile(manifestPath)
	if err != nil {
		return nil, err
	}

	dataDir := filepath.Join(execCtx.WorkDirectory, workdir.InputsDir)
	logger := h.logger.With("goal_id", goal.GoalID, "manifest", manifestPath)

	required, optional := m.Counts()
	result := &models.BindingResult{
		HandlerID:            HandlerID,
		ManifestPath:         manifestPath,
		WorkDirectory:        execCtx.WorkDirectory,
		TotalSources:         len(m.DataSources),
		RequiredSourcesCount: required,
		OptionalSourcesCount: optional,
		Sources:              make([]models.SourceOutcome, 0, len(m.DataSources)),
	}

	for _, spec := range m.DataSources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		outcome := h.bindSource(ctx, spec, dataDir)
		result.Sources = append(result.Sources, outcome)

		if h.observer != nil {
			h.observer.SourceFetched(spec.Type, spec.Required, outcome.Succeeded())
		}

		switch {
		case outcome.Succeeded():
			logger.InfoContext(ctx, "Bound data source", "source", spec.Name, "records", outcome.RecordCount, "path", outcome.Path)
		case spec.Required:
			logger.ErrorContext(ctx, "Required data source failed", "source", spec.Name, "error", outcome.Error)
		default:
			logger.WarnContext(ctx, "Optional data source failed", "source", spec.Name, "error", outcome.Error)
		}
	}

	summarize(result)

	if _, _, err := workdir.WriteJSON(filepath.Join(execCtx.WorkDirectory, workdir.OutputsDir), SummaryName, result); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Data binding finished",
		"status", result.Status,
		"success_rate", result.SuccessRate,
		"required_success_rate", result.RequiredSuccessRate)

	return result, nil
}

// manifestPathFor prefers the path resolved by the model-resolution stage.
func manifestPathFor(goal *models.Goal, execCtx *models.ExecutionContext) string {
	if res, ok := execCtx.ResolutionResult(); ok && res.ManifestPath != "" {
		return res.ManifestPath
	}

	if goal.SelectedModel != nil {
		return goal.SelectedModel.ManifestPath
	}

	return ""
}

func summarize(r *models.BindingResult) {
	for _, s := range r.Sources {
		if !s.Succeeded() {
			continue
		}

		r.SuccessfulSources++

		if s.Required {
			r.RequiredSuccessCount++
		}
	}

	if r.TotalSources > 0 {
		r.SuccessRate = float64(r.SuccessfulSources) / float64(r.TotalSources)
	}

	if r.RequiredSourcesCount > 0 {
		r.RequiredSuccessRate = float64(r.RequiredSuccessCount) / float64(r.RequiredSourcesCount)
	} else {
		r.RequiredSuccessRate = 1.0
	}

	r.Status = models.StageStatusSuccess

	if r.TotalSources > 0 && r.SuccessfulSources == 0 {
		r.Status = models.StageStatusError
		r.Error = "all data sources failed"
	}
}

func (h *Handler) bindSource(ctx context.Context, spec models.DataSourceSpec, dataDir string) models.SourceOutcome {
	outcome := models.SourceOutcome{Name: spec.Name, Type: spec.Type, Required: spec.Required}

	records, err := h.fetch(ctx, spec)
	if err != nil {
		outcome.Error = (&models.DataSourceError{Source: spec.Name, Type: spec.Type, Err: err}).Error()

		return outcome
	}

	path, size, err := workdir.WriteJSON(dataDir, spec.Name+".json", records)
	if err != nil {
		outcome.Error = err.Error()

		return outcome
	}

	outcome.Path = path
	outcome.Size = size
	outcome.RecordCount = len(records)

	return outcome
}

func (h *Handler) fetch(ctx context.Context, spec models.DataSourceSpec) ([]any, error) {
	switch spec.Type {
	case models.SourceTypeAASProperty:
		value, err := h.client.GetSubmodelProperty(ctx, spec.Config.SubmodelID, spec.Config.PropertyPath)
		if err != nil {
			return nil, err
		}

		return toRecords(value)
	case models.SourceTypeAASShellCollection:
		return h.collectShells(ctx, spec.Config)
	default:
		return nil, fmt.Errorf("unsupported data source type %q", spec.Type)
	}
}

// toRecords normalizes a property value into a record list. String values
// must hold JSON.
func toRecords(value any) ([]any, error) {
	if s, ok := value.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("property value is not valid JSON: %w", err)
		}

		value = decoded
	}

	switch v := value.(type) {
	case []any:
		return v, nil
	case map[string]any:
		return []any{v}, nil
	case nil:
		return []any{}, nil
	default:
		return []any{map[string]any{"value": v}}, nil
	}
}
