package models

// Data source types understood by the binding stage.
const (
	SourceTypeAASProperty        = "aas_property"
	SourceTypeAASShellCollection = "aas_shell_collection"
)

// CombinationRuleSubmodelProperty fetches one property per matched shell.
const CombinationRuleSubmodelProperty = "submodel_property"

// DataSourceSpec is one entry of a data-binding manifest.
type DataSourceSpec struct {
	Name     string           `json:"name"     yaml:"name"`
	Type     string           `json:"type"     yaml:"type"`
	Required bool             `json:"required" yaml:"required"`
	Config   DataSourceConfig `json:"config"   yaml:"config"`
}

// DataSourceConfig holds the per-type configuration. Only the fields of the
// source's type are populated.
type DataSourceConfig struct {
	SubmodelID       string            `json:"submodel_id,omitempty"       yaml:"submodel_id,omitempty"`
	PropertyPath     string            `json:"property_path,omitempty"     yaml:"property_path,omitempty"`
	ShellFilter      ShellFilter       `json:"shell_filter,omitempty"      yaml:"shell_filter,omitempty"`
	CombinationRules []CombinationRule `json:"combination_rules,omitempty" yaml:"combination_rules,omitempty"`
}

// ShellFilter narrows a shell listing by idShort.
type ShellFilter struct {
	IDPattern string `json:"id_pattern,omitempty" yaml:"id_pattern,omitempty"`
	IDGlob    string `json:"id_glob,omitempty"    yaml:"id_glob,omitempty"`
}

type CombinationRule struct {
	Type         string `json:"type"          validate:"required,eq=submodel_property" yaml:"type"`
	SubmodelID   string `json:"submodel_id"   validate:"required"                      yaml:"submodel_id"`
	PropertyPath string `json:"property_path" validate:"required"                      yaml:"property_path"`
	ResultKey    string `json:"result_key"    validate:"required"                      yaml:"result_key"`
}
