package resolution

import (
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/protocol"
)

// Factory creates model-resolution handlers.
type Factory struct{}

func NewFactory() protocol.StageHandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(_ map[string]any, deps protocol.Dependencies) (protocol.StageHandler, error) {
	return NewHandler(deps.Logger), nil
}

func (f *Factory) ID() string {
	return HandlerID
}

func (f *Factory) Name() string {
	return "Model Resolution"
}

func (f *Factory) Description() string {
	return "Confirms the goal carries a selected model and resolves its data-binding manifest"
}

func (f *Factory) Stage() string {
	return models.StageModelResolution
}
