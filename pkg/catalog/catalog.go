// Package catalog loads the model registry, an immutable snapshot of the
// simulation models the selector can choose from.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/ontology"
	"github.com/xeipuuv/gojsonschema"
)

// Ontology predicates used for model facts.
const (
	PredicateType           = "type"
	PredicatePurpose        = "purpose"
	PredicateVersion        = "version"
	PredicateContainerImage = "containerImage"
	PredicateManifest       = "metaDataFile"
	ClassModel              = "Model"
)

const registrySchema = `{
  "type": "object",
  "required": ["models"],
  "properties": {
    "models": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["modelId", "purpose", "version", "metaDataFile"],
        "properties": {
          "modelId": {"type": "string", "minLength": 1},
          "purpose": {"type": "string", "minLength": 1},
          "version": {"type": "string", "minLength": 1},
          "metaDataFile": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "container": {
            "type": "object",
            "properties": {
              "image": {"type": "string"},
              "digest": {"type": "string"}
            }
          },
          "outputSchema": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name"],
              "properties": {
                "name": {"type": "string"},
                "datatype": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`

type entry struct {
	ModelID      string `json:"modelId"`
	Purpose      string `json:"purpose"`
	Version      string `json:"version"`
	MetaDataFile string `json:"metaDataFile"`
	Description  string `json:"description"`
	Container    struct {
		Image  string `json:"image"`
		Digest string `json:"digest"`
	} `json:"container"`
	OutputSchema []models.OutputSpec `json:"outputSchema"`
}

type document struct {
	Models []entry `json:"models"`
}

// Catalog is safe for concurrent reads. Lookups hand out copies.
type Catalog struct {
	source string
	models []models.ModelDescriptor
	byID   map[string]int
}

// LoadFile reads model_registry.json. Relative manifest paths are resolved
// against the registry file's directory.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, &models.ConfigError{Source: path, Err: err}
	}

	c, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, &models.ConfigError{Source: path, Err: err}
	}

	c.source = path

	return c, nil
}

func Parse(data []byte, baseDir string) (*Catalog, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(registrySchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model registry: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}

		return nil, errors.New("model registry does not match schema: " + strings.Join(msgs, "; "))
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode model registry: %w", err)
	}

	c := &Catalog{
		models: make([]models.ModelDescriptor, 0, len(doc.Models)),
		byID:   make(map[string]int, len(doc.Models)),
	}

	for _, e := range doc.Models {
		if _, dup := c.byID[e.ModelID]; dup {
			return nil, fmt.Errorf("duplicate modelId %q", e.ModelID)
		}

		manifest := e.MetaDataFile
		if !filepath.IsAbs(manifest) && baseDir != "" {
			manifest = filepath.Join(baseDir, manifest)
		}

		c.byID[e.ModelID] = len(c.models)
		c.models = append(c.models, models.ModelDescriptor{
			ModelID:        e.ModelID,
			Purpose:        e.Purpose,
			Version:        e.Version,
			Description:    e.Description,
			ContainerImage: e.Container.Image,
			ManifestPath:   manifest,
			OutputSchema:   e.OutputSchema,
		})
	}

	return c, nil
}

// Get returns a snapshot of the descriptor with the given id.
func (c *Catalog) Get(modelID string) (*models.ModelDescriptor, bool) {
	i, ok := c.byID[modelID]
	if !ok {
		return nil, false
	}

	return c.models[i].Clone(), true
}

// Models returns snapshots of every model in registration order.
func (c *Catalog) Models() []*models.ModelDescriptor {
	out := make([]*models.ModelDescriptor, len(c.models))
	for i := range c.models {
		out[i] = c.models[i].Clone()
	}

	return out
}

func (c *Catalog) Len() int {
	return len(c.models)
}

// Position returns the registration index used for deterministic ordering.
func (c *Catalog) Position(modelID string) int {
	if i, ok := c.byID[modelID]; ok {
		return i
	}

	return -1
}

func (c *Catalog) Source() string {
	return c.source
}

// Facts describes every model as ontology facts.
func (c *Catalog) Facts() *ontology.Graph {
	g := ontology.NewGraph()

	for _, m := range c.models {
		g.Add(m.ModelID, PredicateType, ClassModel)
		g.Add(m.ModelID, PredicatePurpose, m.Purpose)
		g.Add(m.ModelID, PredicateVersion, m.Version)
		g.Add(m.ModelID, PredicateManifest, m.ManifestPath)

		if m.ContainerImage != "" {
			g.Add(m.ModelID, PredicateContainerImage, m.ContainerImage)
		}
	}

	return g
}
