package selection

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/goalgate/pkg/models"
)

// Selector is the capability the preparer needs from the engine.
type Selector interface {
	SelectModel(ctx context.Context, goal *models.Goal) (*Selection, error)
}

// Preparer binds a model onto goals that require one before they are handed
// to the executor.
type Preparer struct {
	selector Selector
	logger   *slog.Logger
}

func NewPreparer(selector Selector, logger *slog.Logger) *Preparer {
	return &Preparer{
		selector: selector,
		logger:   logger.With("module", "goal_preparer"),
	}
}

// Prepare returns a copy of the goal with selectedModel and
// selectionProvenance bound. Goals that do not require a model are returned
// unchanged. A selection failure aborts preparation.
func (p *Preparer) Prepare(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	prepared := goal.Clone()

	if !prepared.Metadata.RequiresModel {
		p.logger.Debug("Goal does not require a model", "goal_id", goal.GoalID)

		return prepared, nil
	}

	selection, err := p.selector.SelectModel(ctx, prepared)
	if err != nil {
		p.logger.Error("Model selection failed", "goal_id", goal.GoalID, "error", err)

		return nil, err
	}

	prov := selection.Provenance
	prepared.SelectedModel = selection.Model
	prepared.SelectionProvenance = &prov

	note := "Model selected: " + selection.Model.ModelID
	if prepared.Metadata.Notes == "" {
		prepared.Metadata.Notes = note
	} else if !strings.Contains(prepared.Metadata.Notes, note) {
		prepared.Metadata.Notes += "; " + note
	}

	return prepared, nil
}
