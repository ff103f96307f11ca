package registry

import (
	"github.com/dukex/goalgate/pkg/handlers/binding"
	"github.com/dukex/goalgate/pkg/handlers/resolution"
	"github.com/dukex/goalgate/pkg/handlers/simulation"
	"github.com/dukex/goalgate/pkg/protocol"
)

// RegisterDefaultHandlers registers the built-in factories and binds each to
// its default stage.
func (r *Registry) RegisterDefaultHandlers(deps protocol.Dependencies) error {
	factories := []protocol.StageHandlerFactory{
		resolution.NewFactory(),
		binding.NewFactory(),
		simulation.NewFactory(),
	}

	for _, f := range factories {
		r.RegisterFactory(f)

		if err := r.BindFactory("", f.ID(), nil, deps); err != nil {
			return err
		}
	}

	return nil
}
