package selection

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

const DefaultEngineID = "rule-based-selection"

// RuleTable is the typed rule table loaded from rules.yaml.
type RuleTable struct {
	Engine  string `yaml:"engine"`
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// Rule fires when every condition in When evaluates to true.
//
// Without Select the conditions are evaluated once per registry model and
// every model that satisfies them is a candidate. With Select the named
// model is the only candidate.
type Rule struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Priority    int      `yaml:"priority"`
	When        []string `yaml:"when"`
	Select      string   `yaml:"select"`
}

func LoadRuleTable(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, &models.ConfigError{Source: path, Err: err}
	}

	table, err := ParseRuleTable(data)
	if err != nil {
		return nil, &models.ConfigError{Source: path, Err: err}
	}

	return table, nil
}

func ParseRuleTable(data []byte) (*RuleTable, error) {
	var table RuleTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse rule table: %w", err)
	}

	if len(table.Rules) == 0 {
		return nil, errors.New("rule table has no rules")
	}

	if table.Engine == "" {
		table.Engine = DefaultEngineID
	}

	seen := make(map[string]bool, len(table.Rules))

	for i, r := range table.Rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d has no name", i)
		}

		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate rule name %q", r.Name)
		}

		seen[r.Name] = true

		if len(r.When) == 0 {
			return nil, fmt.Errorf("rule %q has no conditions", r.Name)
		}
	}

	return &table, nil
}

type compiledRule struct {
	Rule

	order      int
	conditions []cel.Program

	// usesModel marks the conditions that read the model binding.
	usesModel []bool
	// modelFields lists the model fields the conditions read, in first-use order.
	modelFields []string
}

var (
	modelRef      = regexp.MustCompile(`\bmodel\b`)
	modelFieldRef = regexp.MustCompile(`\bmodel(?:\.(\w+)|\["(\w+)"\])`)
)

// modelRefs returns the model fields expr reads and whether it reads the model at all.
func modelRefs(expr string) ([]string, bool) {
	matches := modelFieldRef.FindAllStringSubmatch(expr, -1)
	if len(matches) == 0 {
		return nil, modelRef.MatchString(expr)
	}

	fields := make([]string, 0, len(matches))

	for _, m := range matches {
		if m[1] != "" {
			fields = append(fields, m[1])
		} else {
			fields = append(fields, m[2])
		}
	}

	return fields, true
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("goal", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("model", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("facts", cel.MapType(cel.StringType, cel.MapType(cel.StringType, cel.ListType(cel.StringType)))),
	)
}

// compileRules compiles every condition up front and orders rules by
// priority (descending) then declaration order.
func compileRules(env *cel.Env, table *RuleTable) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(table.Rules))

	for i, r := range table.Rules {
		cr := compiledRule{Rule: r, order: i}

		for _, expr := range r.When {
			ast, issues := env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				return nil, fmt.Errorf("rule %q: condition %q: %w", r.Name, expr, issues.Err())
			}

			if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
				return nil, fmt.Errorf("rule %q: condition %q must be boolean, got %s", r.Name, expr, out)
			}

			prg, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("rule %q: condition %q: %w", r.Name, expr, err)
			}

			cr.conditions = append(cr.conditions, prg)

			fields, uses := modelRefs(expr)
			cr.usesModel = append(cr.usesModel, uses)

			for _, f := range fields {
				if !slices.Contains(cr.modelFields, f) {
					cr.modelFields = append(cr.modelFields, f)
				}
			}
		}

		compiled = append(compiled, cr)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})

	return compiled, nil
}
