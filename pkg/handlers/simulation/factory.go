package simulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/protocol"
)

// Factory creates simulation handlers. Config keys: result_file_attempts,
// result_file_interval (Go duration string).
type Factory struct{}

func NewFactory() protocol.StageHandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(config map[string]any, deps protocol.Dependencies) (protocol.StageHandler, error) {
	if deps.Runner == nil {
		return nil, errors.New("simulation requires a container runner")
	}

	attempts := 0

	switch v := config["result_file_attempts"].(type) {
	case nil:
	case int:
		attempts = v
	case float64:
		attempts = int(v)
	default:
		return nil, fmt.Errorf("result_file_attempts must be a number, got %T", v)
	}

	var interval time.Duration

	if raw, ok := config["result_file_interval"].(string); ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid result_file_interval: %w", err)
		}

		interval = d
	}

	return NewHandler(deps.Runner, deps.Logger, WithResultFileRetry(attempts, interval)), nil
}

func (f *Factory) ID() string {
	return HandlerID
}

func (f *Factory) Name() string {
	return "Containerized Simulation"
}

func (f *Factory) Description() string {
	return "Runs the selected model's container image over the bound data and maps its JSON output onto the goal"
}

func (f *Factory) Stage() string {
	return models.StageSimulation
}
