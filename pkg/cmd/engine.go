package cmd

import (
	"log/slog"

	"github.com/dukex/goalgate/pkg/catalog"
	"github.com/dukex/goalgate/pkg/ontology"
	"github.com/dukex/goalgate/pkg/selection"
)

// EngineFiles names the configuration documents of the selection engine.
type EngineFiles struct {
	Registry string
	Ontology string // optional
	Rules    string
}

// NewEngine loads the registry, ontology and rule table and compiles the
// selection engine. Every failure is a models.ConfigError.
func NewEngine(files EngineFiles, logger *slog.Logger, opts ...selection.Option) (*selection.Engine, error) {
	cat, err := catalog.LoadFile(files.Registry)
	if err != nil {
		return nil, err
	}

	var onto *ontology.Graph
	if files.Ontology != "" {
		onto, err = ontology.LoadFile(files.Ontology)
		if err != nil {
			return nil, err
		}
	}

	table, err := selection.LoadRuleTable(files.Rules)
	if err != nil {
		return nil, err
	}

	return selection.NewEngine(cat, onto, table, logger, opts...)
}
