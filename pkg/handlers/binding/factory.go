package binding

import (
	"errors"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/protocol"
)

// Factory creates data-binding handlers.
type Factory struct{}

func NewFactory() protocol.StageHandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(_ map[string]any, deps protocol.Dependencies) (protocol.StageHandler, error) {
	if deps.AAS == nil {
		return nil, errors.New("data binding requires an AAS client")
	}

	var opts []Option
	if deps.Observer != nil {
		opts = append(opts, WithObserver(deps.Observer))
	}

	return NewHandler(deps.AAS, deps.Logger, opts...), nil
}

func (f *Factory) ID() string {
	return HandlerID
}

func (f *Factory) Name() string {
	return "YAML Data Binding"
}

func (f *Factory) Description() string {
	return "Fetches the data sources listed in the model's manifest from an AAS server and writes one JSON file per source"
}

func (f *Factory) Stage() string {
	return models.StageDataBinding
}
