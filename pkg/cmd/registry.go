// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/goalgate/pkg/protocol"
	"github.com/dukex/goalgate/pkg/registry"
)

// NewRegistry binds the built-in stage handlers, then lets handler plugins
// found under pluginsPath replace them stage by stage.
func NewRegistry(log *slog.Logger, pluginsPath string, deps protocol.Dependencies) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	if err := reg.RegisterDefaultHandlers(deps); err != nil {
		return nil, fmt.Errorf("failed to register built-in handlers: %w", err)
	}

	if pluginsPath == "" {
		return reg, nil
	}

	plugins, err := reg.LoadHandlerPlugins(pluginsPath)
	if err != nil {
		return nil, err
	}

	for _, factory := range plugins {
		reg.RegisterFactory(factory)

		if err := reg.BindFactory("", factory.ID(), nil, deps); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
