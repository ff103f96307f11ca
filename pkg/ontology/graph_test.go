package ontology_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/ontology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_AddIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	g := ontology.NewGraph()
	g.Add("goal3", "requiresPurpose", "DeliveryPrediction")
	g.Add("goal3", "requiresPurpose", "DeliveryPrediction")

	assert.Equal(t, 1, g.Len())
	assert.Equal(t, []string{"DeliveryPrediction"}, g.Objects("goal3", "requiresPurpose"))
	assert.True(t, g.Has("goal3", "requiresPurpose", "DeliveryPrediction"))
	assert.Empty(t, g.Objects("goal3", "missing"))
}

func TestGraph_TriplesSorted(t *testing.T) {
	t.Parallel()

	g := ontology.NewGraph(
		ontology.Triple{Subject: "b", Predicate: "p", Object: "1"},
		ontology.Triple{Subject: "a", Predicate: "q", Object: "2"},
		ontology.Triple{Subject: "a", Predicate: "p", Object: "3"},
	)

	triples := g.Triples()
	require.Len(t, triples, 3)
	assert.Equal(t, "(a p 3)", triples[0].String())
	assert.Equal(t, "(a q 2)", triples[1].String())
	assert.Equal(t, "(b p 1)", triples[2].String())
}

func TestUnion_OverlayDoesNotLeakIntoBase(t *testing.T) {
	t.Parallel()

	base := ontology.NewGraph(ontology.Triple{Subject: "goal3", Predicate: "requiresPurpose", Object: "DeliveryPrediction"})

	u := ontology.NewUnion(base, nil)
	u.Assert("goal:g1", "selectedModel", "NSGA2SimulatorModel")
	u.Assert("goal3", "requiresPurpose", "Other")

	assert.True(t, u.Has("goal:g1", "selectedModel", "NSGA2SimulatorModel"))
	assert.ElementsMatch(t, []string{"DeliveryPrediction", "Other"}, u.Objects("goal3", "requiresPurpose"))

	facts := u.Facts()
	assert.ElementsMatch(t, []string{"DeliveryPrediction", "Other"}, facts["goal3"]["requiresPurpose"])

	assert.False(t, base.Has("goal:g1", "selectedModel", "NSGA2SimulatorModel"))
	assert.Equal(t, []string{"DeliveryPrediction"}, base.Objects("goal3", "requiresPurpose"))
	assert.Equal(t, 1, base.Len())
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "ontology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
namespace: http://example.com/factory#
facts:
  - [goal3_predict_production_time, requiresPurpose, DeliveryPrediction]
  - [DeliveryPrediction, type, Purpose]
`), 0o600))

	g, err := ontology.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/factory#", g.Namespace)
	assert.Equal(t, 2, g.Len())
}

func TestLoadFile_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{name: "short fact", content: "facts:\n  - [a, b]\n"},
		{name: "empty term", content: "facts:\n  - [a, '', c]\n"},
		{name: "not yaml", content: "facts: [[a, b, c]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := ontology.LoadFile(path)
			require.Error(t, err)
			assert.True(t, models.IsConfigError(err))
		})
	}

	_, err := ontology.LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.True(t, models.IsConfigError(err))
}
