// Package manifest parses the YAML data-binding manifests that tell the
// binding stage which external data a model needs.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = newValidator()

// newValidator reports fields by their manifest (yaml) names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

type propertyConfig struct {
	SubmodelID   string `validate:"required" yaml:"submodel_id"`
	PropertyPath string `validate:"required" yaml:"property_path"`
}

var validTypes = map[string]bool{
	models.SourceTypeAASProperty:        true,
	models.SourceTypeAASShellCollection: true,
}

// Manifest is a parsed and validated data-binding manifest.
type Manifest struct {
	Path        string
	DataSources []models.DataSourceSpec
}

// Counts returns the number of required and optional sources.
func (m *Manifest) Counts() (required, optional int) {
	for _, s := range m.DataSources {
		if s.Required {
			required++
		} else {
			optional++
		}
	}

	return required, optional
}

type rawManifest struct {
	DataSources *[]rawSource `yaml:"data_sources"`
}

type rawSource struct {
	Name     string    `yaml:"name"`
	Type     string    `yaml:"type"`
	Required yaml.Node `yaml:"required"`
	Config   yaml.Node `yaml:"config"`
}

// ParseFile reads and validates a manifest. Every failure is a
// ManifestParsingError; a missing file also matches ErrManifestNotFound.
func ParseFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- manifest paths come from the model registry
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.ManifestParsingError{Path: path, Err: fmt.Errorf("%w: %s", models.ErrManifestNotFound, path)}
		}

		return nil, &models.ManifestParsingError{Path: path, Err: err}
	}

	return Parse(data, path)
}

func Parse(data []byte, path string) (*Manifest, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &models.ManifestParsingError{Path: path, Err: fmt.Errorf("YAML parsing error: %w", err)}
	}

	if raw.DataSources == nil {
		return nil, &models.ManifestParsingError{Path: path, Err: errors.New("manifest must contain 'data_sources' field")}
	}

	m := &Manifest{Path: path, DataSources: make([]models.DataSourceSpec, 0, len(*raw.DataSources))}
	seen := make(map[string]bool)

	for i, rs := range *raw.DataSources {
		spec, err := validateSource(i, rs)
		if err != nil {
			return nil, &models.ManifestParsingError{Path: path, Source: sourceLabel(i, rs.Name), Err: err}
		}

		if seen[spec.Name] {
			return nil, &models.ManifestParsingError{Path: path, Source: spec.Name, Err: errors.New("duplicate data source name")}
		}

		seen[spec.Name] = true
		m.DataSources = append(m.DataSources, spec)
	}

	return m, nil
}

func validateSource(index int, rs rawSource) (models.DataSourceSpec, error) {
	spec := models.DataSourceSpec{Name: rs.Name, Type: rs.Type, Required: true}

	if rs.Name == "" {
		return spec, fmt.Errorf("data source %d missing required field: name", index)
	}

	if strings.ContainsAny(rs.Name, `/\`) || strings.Contains(rs.Name, "..") {
		return spec, errors.New("name must not contain path separators")
	}

	if rs.Type == "" {
		return spec, fmt.Errorf("data source %d missing required field: type", index)
	}

	if !validTypes[rs.Type] {
		return spec, fmt.Errorf("invalid type %q, valid types: %s, %s",
			rs.Type, models.SourceTypeAASProperty, models.SourceTypeAASShellCollection)
	}

	if rs.Required.Kind != 0 {
		if rs.Required.Kind != yaml.ScalarNode || rs.Required.ShortTag() != "!!bool" {
			return spec, errors.New("'required' field must be boolean")
		}

		if err := rs.Required.Decode(&spec.Required); err != nil {
			return spec, fmt.Errorf("'required' field must be boolean: %w", err)
		}
	}

	if rs.Config.Kind == 0 {
		return spec, fmt.Errorf("data source %d missing required field: config", index)
	}

	if rs.Config.Kind != yaml.MappingNode {
		return spec, errors.New("'config' must be a mapping")
	}

	var present map[string]yaml.Node
	if err := rs.Config.Decode(&present); err != nil {
		return spec, fmt.Errorf("invalid config: %w", err)
	}

	if err := rs.Config.Decode(&spec.Config); err != nil {
		return spec, fmt.Errorf("invalid config: %w", err)
	}

	switch rs.Type {
	case models.SourceTypeAASProperty:
		cfg := propertyConfig{SubmodelID: spec.Config.SubmodelID, PropertyPath: spec.Config.PropertyPath}
		if err := validate.Struct(cfg); err != nil {
			return spec, fmt.Errorf("aas_property config %s", describe(err))
		}
	case models.SourceTypeAASShellCollection:
		if _, ok := present["combination_rules"]; !ok {
			return spec, errors.New("aas_shell_collection config must have 'combination_rules'")
		}

		for j, rule := range spec.Config.CombinationRules {
			if err := validateRule(j, rule); err != nil {
				return spec, err
			}
		}
	}

	return spec, nil
}

func validateRule(index int, rule models.CombinationRule) error {
	if err := validate.Struct(rule); err != nil {
		return fmt.Errorf("combination_rule %d %s", index, describe(err))
	}

	return nil
}

// describe turns validator errors into "missing a, b" or "has invalid x".
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	var missing, invalid []string

	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fmt.Sprintf("%s %q (want %s)", fe.Field(), fe.Value(), fe.Param()))
		}
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ", "))
	}

	if len(invalid) > 0 {
		parts = append(parts, "has invalid "+strings.Join(invalid, ", "))
	}

	return strings.Join(parts, "; ")
}

func sourceLabel(index int, name string) string {
	if name != "" {
		return name
	}

	return fmt.Sprintf("#%d", index)
}
