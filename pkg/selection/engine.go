// Package selection chooses a simulation model for a goal by evaluating a
// rule table over the ontology, the model registry and the goal's own facts.
package selection

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/dukex/goalgate/pkg/catalog"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/ontology"
	"github.com/zeebo/blake3"
)

// Predicates asserted for the goal under evaluation.
const (
	PredicateGoalType      = "goalType"
	PredicateCategory      = "category"
	PredicateSelectedModel = "selectedModel"
	PredicateParamPrefix   = "param:"
)

// Selection is the outcome of one successful SelectModel call.
type Selection struct {
	Model      *models.ModelDescriptor
	Provenance models.SelectionProvenance
}

// Observer is notified of every successful selection.
type Observer interface {
	ModelSelected(rule, modelID string)
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	id       string
	version  string
	catalog  *catalog.Catalog
	base     *ontology.Graph
	rules    []compiledRule
	logger   *slog.Logger
	now      func() time.Time
	observer Observer
}

// NewEngine compiles the rule table and freezes the shared fact graph.
// Any problem is reported as a ConfigError.
func NewEngine(cat *catalog.Catalog, onto *ontology.Graph, table *RuleTable, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cat == nil || table == nil {
		return nil, &models.ConfigError{Source: "selection", Err: fmt.Errorf("model registry and rule table are required")}
	}

	env, err := newEnv()
	if err != nil {
		return nil, &models.ConfigError{Source: "selection", Err: fmt.Errorf("failed to create CEL env: %w", err)}
	}

	rules, err := compileRules(env, table)
	if err != nil {
		return nil, &models.ConfigError{Source: "rules", Err: err}
	}

	e := &Engine{
		id:      table.Engine,
		version: table.Version,
		catalog: cat,
		base:    ontology.Merge(onto, cat.Facts()),
		rules:   rules,
		logger:  logger.With("module", "selection_engine"),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger.Info("Selection engine ready",
		"engine", e.id,
		"rules", len(e.rules),
		"models", cat.Len(),
		"facts", e.base.Len())

	return e, nil
}

func (e *Engine) ID() string {
	return e.id
}

func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// SelectModel evaluates the rule table for the goal and returns exactly one
// model or a SelectionError. The shared graph is never modified.
func (e *Engine) SelectModel(ctx context.Context, goal *models.Goal) (*Selection, error) {
	subject := goalSubject(goal.GoalID)

	scratch := goalFacts(subject, goal)
	union := ontology.NewUnion(e.base, scratch)
	inputsHash := hashFacts(scratch)

	vars := map[string]any{
		"goal":  goalVars(goal),
		"facts": union.Facts(),
	}

	logger := e.logger.With("goal_id", goal.GoalID, "goal_type", goal.GoalType)

	var (
		fired      *compiledRule
		candidates []*models.ModelDescriptor
	)

	for i := range e.rules {
		if err := ctx.Err(); err != nil {
			return nil, &models.SelectionError{GoalID: goal.GoalID, GoalType: goal.GoalType, Reason: "selection cancelled", Err: err}
		}

		rule := &e.rules[i]

		matched, err := e.candidatesFor(rule, vars, logger)
		if err != nil {
			return nil, &models.SelectionError{GoalID: goal.GoalID, GoalType: goal.GoalType, Reason: err.Error()}
		}

		if len(matched) > 0 {
			fired = rule
			candidates = matched

			break
		}
	}

	if fired == nil {
		return nil, &models.SelectionError{
			GoalID:   goal.GoalID,
			GoalType: goal.GoalType,
			Reason:   "no rule matched",
		}
	}

	winner := e.tieBreak(candidates)
	union.Assert(subject, PredicateSelectedModel, winner.ModelID)

	selected := union.Objects(subject, PredicateSelectedModel)
	if len(selected) != 1 {
		return nil, &models.SelectionError{
			GoalID:   goal.GoalID,
			GoalType: goal.GoalType,
			Reason:   fmt.Sprintf("expected exactly one selected model, found %d", len(selected)),
		}
	}

	descriptor, ok := e.catalog.Get(selected[0])
	if !ok {
		return nil, &models.SelectionError{
			GoalID:   goal.GoalID,
			GoalType: goal.GoalType,
			Reason:   fmt.Sprintf("selected model %q is not in the registry", selected[0]),
		}
	}

	provenance := models.SelectionProvenance{
		RuleName:    fired.Name,
		RuleVersion: e.version,
		EngineID:    e.id,
		Evidence:    evidence(fired, goal, descriptor),
		Timestamp:   e.now().UTC(),
		Confidence:  1.0 / float64(len(candidates)),
		InputsHash:  inputsHash,
	}

	logger.Info("Model selected",
		"rule", fired.Name,
		"model_id", descriptor.ModelID,
		"candidates", len(candidates))

	if e.observer != nil {
		e.observer.ModelSelected(fired.Name, descriptor.ModelID)
	}

	return &Selection{Model: descriptor, Provenance: provenance}, nil
}

func (e *Engine) candidatesFor(rule *compiledRule, vars map[string]any, logger *slog.Logger) ([]*models.ModelDescriptor, error) {
	if rule.Select != "" {
		target, exists := e.catalog.Get(rule.Select)
		if !exists {
			// Only the conditions that do not read the model can be decided.
			if !e.matches(rule, vars, nil, logger) {
				return nil, nil
			}

			return nil, fmt.Errorf("rule %q selected model %q which is not in the registry", rule.Name, rule.Select)
		}

		if !e.matches(rule, vars, descriptorVars(target), logger) {
			return nil, nil
		}

		return []*models.ModelDescriptor{target}, nil
	}

	var matched []*models.ModelDescriptor

	for _, m := range e.catalog.Models() {
		if e.matches(rule, vars, descriptorVars(m), logger) {
			matched = append(matched, m)
		}
	}

	return matched, nil
}

// matches treats evaluation errors, such as a missing map key, as a non-match.
// A nil modelVars skips the conditions that read the model.
func (e *Engine) matches(rule *compiledRule, vars map[string]any, modelVars map[string]any, logger *slog.Logger) bool {
	activation := map[string]any{
		"goal":  vars["goal"],
		"facts": vars["facts"],
		"model": modelVars,
	}

	for i, prg := range rule.conditions {
		if modelVars == nil && rule.usesModel[i] {
			continue
		}

		out, _, err := prg.Eval(activation)
		if err != nil {
			logger.Debug("Condition did not evaluate",
				"rule", rule.Name,
				"condition", rule.When[i],
				"error", err)

			return false
		}

		ok, isBool := out.Value().(bool)
		if !isBool || !ok {
			return false
		}
	}

	return true
}

// evidence lists the conditions that held, then the goal and model values they were decided on.
func evidence(rule *compiledRule, goal *models.Goal, model *models.ModelDescriptor) []string {
	out := append([]string(nil), rule.When...)
	out = append(out,
		PredicateGoalType+"=="+goal.GoalType,
		"modelId=="+model.ModelID)

	bound := descriptorVars(model)

	for _, field := range rule.modelFields {
		if v, ok := bound[field]; ok && field != "modelId" {
			out = append(out, fmt.Sprintf("%s==%v", field, v))
		}
	}

	return out
}

// tieBreak prefers the highest semantic version, then the earliest
// registered model.
func (e *Engine) tieBreak(candidates []*models.ModelDescriptor) *models.ModelDescriptor {
	if len(candidates) == 1 {
		return candidates[0]
	}

	sorted := append([]*models.ModelDescriptor(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		c := compareVersions(sorted[i].Version, sorted[j].Version)
		if c != 0 {
			return c > 0
		}

		return e.catalog.Position(sorted[i].ModelID) < e.catalog.Position(sorted[j].ModelID)
	})

	return sorted[0]
}

// compareVersions orders parseable versions above unparseable ones.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)

	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return strings.Compare(a, b)
	}
}

func goalSubject(goalID string) string {
	return "goal:" + goalID
}

func goalFacts(subject string, goal *models.Goal) *ontology.Graph {
	g := ontology.NewGraph()
	g.Add(subject, PredicateGoalType, goal.GoalType)

	if goal.Metadata.Category != "" {
		g.Add(subject, PredicateCategory, goal.Metadata.Category)
	}

	for _, p := range goal.Parameters {
		g.Add(subject, PredicateParamPrefix+p.Key, p.String())
	}

	return g
}

func goalVars(goal *models.Goal) map[string]any {
	params := make(map[string]any, len(goal.Parameters))
	for _, p := range goal.Parameters {
		params[p.Key] = p.String()
	}

	return map[string]any{
		"goalId":   goal.GoalID,
		"goalType": goal.GoalType,
		"category": goal.Metadata.Category,
		"params":   params,
	}
}

func descriptorVars(m *models.ModelDescriptor) map[string]any {
	return map[string]any{
		"modelId":        m.ModelID,
		"purpose":        m.Purpose,
		"version":        m.Version,
		"containerImage": m.ContainerImage,
	}
}

func hashFacts(g *ontology.Graph) string {
	h := blake3.New()
	for _, t := range g.Triples() {
		_, _ = h.Write([]byte(t.String()))
		_, _ = h.Write([]byte{'\n'})
	}

	return "blake3:" + hex.EncodeToString(h.Sum(nil))
}
