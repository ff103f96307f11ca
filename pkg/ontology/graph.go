// Package ontology provides the small fact graph the model selector reasons over.
//
// A loaded Graph is never mutated after startup. Per-goal facts live in a
// separate scratch Graph, and rules read both through a Union view.
package ontology

import (
	"fmt"
	"os"
	"sort"

	"github.com/dukex/goalgate/pkg/models"
	"gopkg.in/yaml.v3"
)

// Triple is a single subject/predicate/object fact.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

func (t Triple) String() string {
	return fmt.Sprintf("(%s %s %s)", t.Subject, t.Predicate, t.Object)
}

// Reader is the read side shared by graphs and union views.
type Reader interface {
	Objects(subject, predicate string) []string
	Has(subject, predicate, object string) bool
	Facts() map[string]map[string][]string
}

type Graph struct {
	Namespace string
	index     map[string]map[string][]string
	size      int
}

func NewGraph(triples ...Triple) *Graph {
	g := &Graph{index: make(map[string]map[string][]string)}
	for _, t := range triples {
		g.Add(t.Subject, t.Predicate, t.Object)
	}

	return g
}

// Add inserts a fact, ignoring duplicates.
func (g *Graph) Add(subject, predicate, object string) {
	preds, ok := g.index[subject]
	if !ok {
		preds = make(map[string][]string)
		g.index[subject] = preds
	}

	for _, o := range preds[predicate] {
		if o == object {
			return
		}
	}

	preds[predicate] = append(preds[predicate], object)
	g.size++
}

func (g *Graph) Objects(subject, predicate string) []string {
	return append([]string(nil), g.index[subject][predicate]...)
}

func (g *Graph) Has(subject, predicate, object string) bool {
	for _, o := range g.index[subject][predicate] {
		if o == object {
			return true
		}
	}

	return false
}

func (g *Graph) Len() int {
	return g.size
}

// Facts returns a copy of the graph as subject -> predicate -> objects.
func (g *Graph) Facts() map[string]map[string][]string {
	out := make(map[string]map[string][]string, len(g.index))
	for s, preds := range g.index {
		out[s] = copyPredicates(preds)
	}

	return out
}

// Triples returns every fact in a stable order.
func (g *Graph) Triples() []Triple {
	triples := make([]Triple, 0, g.size)
	for s, preds := range g.index {
		for p, objs := range preds {
			for _, o := range objs {
				triples = append(triples, Triple{Subject: s, Predicate: p, Object: o})
			}
		}
	}

	sort.Slice(triples, func(i, j int) bool {
		a, b := triples[i], triples[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}

		if a.Predicate != b.Predicate {
			return a.Predicate < b.Predicate
		}

		return a.Object < b.Object
	})

	return triples
}

// Merge returns a new graph holding the facts of all inputs.
func Merge(graphs ...*Graph) *Graph {
	merged := NewGraph()
	for _, g := range graphs {
		if g == nil {
			continue
		}

		if merged.Namespace == "" {
			merged.Namespace = g.Namespace
		}

		for s, preds := range g.index {
			for p, objs := range preds {
				for _, o := range objs {
					merged.Add(s, p, o)
				}
			}
		}
	}

	return merged
}

type document struct {
	Namespace string     `yaml:"namespace"`
	Facts     [][]string `yaml:"facts"`
}

// LoadFile reads an ontology document of the form
// {namespace: ..., facts: [[subject, predicate, object], ...]}.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, &models.ConfigError{Source: path, Err: err}
	}

	g, err := Parse(data)
	if err != nil {
		return nil, &models.ConfigError{Source: path, Err: err}
	}

	return g, nil
}

func Parse(data []byte) (*Graph, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ontology: %w", err)
	}

	g := NewGraph()
	g.Namespace = doc.Namespace

	for i, fact := range doc.Facts {
		if len(fact) != 3 {
			return nil, fmt.Errorf("fact %d must have exactly 3 terms, got %d", i, len(fact))
		}

		for _, term := range fact {
			if term == "" {
				return nil, fmt.Errorf("fact %d has an empty term", i)
			}
		}

		g.Add(fact[0], fact[1], fact[2])
	}

	return g, nil
}

func copyPredicates(preds map[string][]string) map[string][]string {
	out := make(map[string][]string, len(preds))
	for p, objs := range preds {
		out[p] = append([]string(nil), objs...)
	}

	return out
}
