// Package registry binds pipeline stage names to stage handlers.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"sync"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	factories map[string]protocol.StageHandlerFactory
	handlers  map[string]protocol.StageHandler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		factories: make(map[string]protocol.StageHandlerFactory),
		handlers:  make(map[string]protocol.StageHandler),
	}
}

// LoadHandlerPlugins opens every .so under <pluginsPath>/handlers and returns
// the factories they export as the "Handler" symbol.
func (r *Registry) LoadHandlerPlugins(pluginsPath string) ([]protocol.StageHandlerFactory, error) {
	return loadPlugin[protocol.StageHandlerFactory](r.logger, pluginsPath, "Handler")
}

func (r *Registry) RegisterFactory(factory protocol.StageHandlerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
}

// Bind installs handler for stage, replacing any previous binding.
func (r *Registry) Bind(stage string, handler protocol.StageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[stage] = handler
	r.logger.Debug("Bound stage handler", "stage", stage, "handler", handler.ID())
}

// BindFactory creates a handler from a registered factory and binds it to
// stage, or to the factory's default stage when stage is empty.
func (r *Registry) BindFactory(stage, factoryID string, config map[string]any, deps protocol.Dependencies) error {
	r.mu.RLock()
	factory, ok := r.factories[factoryID]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("handler factory '%s' not registered", factoryID)
	}

	if stage == "" {
		stage = factory.Stage()
	}

	if deps.Logger == nil {
		deps.Logger = r.logger
	}

	handler, err := factory.Create(config, deps)
	if err != nil {
		return fmt.Errorf("failed to create handler '%s' for stage %s: %w", factoryID, stage, err)
	}

	r.Bind(stage, handler)

	return nil
}

// Handler returns the handler bound to stage.
func (r *Registry) Handler(stage string) (protocol.StageHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownStage, stage)
	}

	return handler, nil
}

// Stages lists bound stage names with their handler IDs.
func (r *Registry) Stages() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stages := make(map[string]string, len(r.handlers))
	for stage, h := range r.handlers {
		stages[stage] = h.ID()
	}

	return stages
}

// Factories returns the registered factories ordered by ID.
func (r *Registry) Factories() []protocol.StageHandlerFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]protocol.StageHandlerFactory, 0, len(r.factories))
	for _, f := range r.factories {
		list = append(list, f)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })

	return list
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/handlers"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no %s symbol: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: %s symbol has unexpected type %T", p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded handler plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
