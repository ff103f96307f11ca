package binding_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukex/goalgate/pkg/aas"
	"github.com/dukex/goalgate/pkg/handlers/binding"
	"github.com/dukex/goalgate/pkg/log"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/testutil"
	"github.com/dukex/goalgate/pkg/workdir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mixedManifest = `
data_sources:
  - name: order_list
    type: aas_property
    config:
      submodel_id: urn:factory:submodel:simulation_data
      property_path: order_list
  - name: job_templates
    type: aas_property
    required: true
    config:
      submodel_id: urn:factory:submodel:simulation_data
      property_path: job_templates
  - name: machines
    type: aas_shell_collection
    required: false
    config:
      shell_filter:
        id_pattern: Machine
      combination_rules:
        - type: submodel_property
          submodel_id: "urn:factory:submodel:capability:{shell_id}"
          property_path: capability
          result_key: capability
        - type: submodel_property
          submodel_id: "urn:factory:submodel:status:{shell_id}"
          property_path: status
          result_key: status
`

type fakeAAS struct {
	properties map[string]any
	shells     []aas.Shell
	shellsErr  error
}

func (f *fakeAAS) GetSubmodelProperty(_ context.Context, submodelID, propertyPath string) (any, error) {
	v, ok := f.properties[submodelID+"#"+propertyPath]
	if !ok {
		return nil, models.ErrPropertyNotFound
	}

	return v, nil
}

func (f *fakeAAS) ListShells(context.Context) ([]aas.Shell, error) {
	return f.shells, f.shellsErr
}

func newFactoryAAS() *fakeAAS {
	return &fakeAAS{
		properties: map[string]any{
			"urn:factory:submodel:simulation_data#order_list":    `[{"order_id": "O1"}, {"order_id": "O2"}]`,
			"urn:factory:submodel:simulation_data#job_templates": map[string]any{"Product-A": []any{"cut", "weld"}},
			"urn:factory:submodel:capability:Machine1#capability": "welding",
			"urn:factory:submodel:capability:Machine2#capability": "cutting",
			"urn:factory:submodel:status:Machine1#status":         "idle",
		},
		shells: []aas.Shell{
			{IDShort: "Machine1", Identification: map[string]any{"id": "urn:m1"}},
			{IDShort: "Machine2"},
			{IDShort: "Line1"},
		},
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) SourceFetched(sourceType string, required, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := "failed"
	if ok {
		status = "ok"
	}

	req := "optional"
	if required {
		req = "required"
	}

	o.events = append(o.events, sourceType+"/"+req+"/"+status)
}

// setup writes the manifest and returns a run context whose resolution stage
// already points at it.
func setup(t *testing.T, manifest string) (*models.Goal, *models.ExecutionContext) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))

	dir, err := workdir.NewManager(t.TempDir()).Create("goal3-001")
	require.NoError(t, err)

	goal := testutil.CreateTestGoal(testutil.WithSelectedModel(testutil.CreateTestModel()))
	execCtx := models.NewExecutionContext("exec-1", goal.GoalID, dir, time.Now())

	now := time.Now()
	execCtx.Record(models.NewStageResult(models.StageModelResolution, &models.ResolutionResult{
		Status:       models.StageStatusSuccess,
		HandlerID:    "ModelResolutionHandler",
		ManifestPath: path,
	}, now, now))

	return goal, execCtx
}

func execute(t *testing.T, client *fakeAAS, manifest string, opts ...binding.Option) (*models.BindingResult, *models.ExecutionContext) {
	t.Helper()

	goal, execCtx := setup(t, manifest)

	payload, err := binding.NewHandler(client, log.Discard(), opts...).Execute(context.Background(), goal, execCtx)
	require.NoError(t, err)

	result, ok := payload.(*models.BindingResult)
	require.True(t, ok)

	return result, execCtx
}

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))

	return records
}

func TestExecute_AllSources(t *testing.T) {
	t.Parallel()

	observer := &recordingObserver{}
	result, execCtx := execute(t, newFactoryAAS(), mixedManifest, binding.WithObserver(observer))

	assert.Equal(t, models.StageStatusSuccess, result.Status)
	assert.Equal(t, 3, result.TotalSources)
	assert.Equal(t, 3, result.SuccessfulSources)
	assert.InDelta(t, 1.0, result.SuccessRate, 0.0001)
	assert.Equal(t, 2, result.RequiredSourcesCount)
	assert.Equal(t, 1, result.OptionalSourcesCount)
	assert.InDelta(t, 1.0, result.RequiredSuccessRate, 0.0001)

	files := result.Files()
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(execCtx.WorkDirectory, workdir.InputsDir, "order_list.json"), files["order_list"])

	orders := readRecords(t, files["order_list"])
	require.Len(t, orders, 2)
	assert.Equal(t, "O1", orders[0]["order_id"])

	templates := readRecords(t, files["job_templates"])
	require.Len(t, templates, 1)
	assert.Contains(t, templates[0], "Product-A")

	machines := readRecords(t, files["machines"])
	require.Len(t, machines, 2)
	assert.Equal(t, "Machine1", machines[0]["shell_id"])
	assert.Equal(t, "welding", machines[0]["capability"])
	assert.Equal(t, "idle", machines[0]["status"])
	assert.Equal(t, map[string]any{"id": "urn:m1"}, machines[0]["shell_identification"])
	assert.Equal(t, "cutting", machines[1]["capability"])
	assert.Contains(t, machines[1], "status")
	assert.Nil(t, machines[1]["status"])

	assert.Equal(t, 2, result.Sources[0].RecordCount)
	assert.Positive(t, result.Sources[0].Size)

	assert.Equal(t, []string{
		"aas_property/required/ok",
		"aas_property/required/ok",
		"aas_shell_collection/optional/ok",
	}, observer.events)

	_, err := os.Stat(filepath.Join(execCtx.WorkDirectory, workdir.OutputsDir, binding.SummaryName))
	assert.NoError(t, err)
}

func TestExecute_PartialFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		mutate           func(*fakeAAS)
		wantStatus       models.StageStatus
		wantSuccessful   int
		wantRequiredRate float64
		wantFailedSource string
	}{
		{
			name:             "optional source fails",
			mutate:           func(f *fakeAAS) { f.shellsErr = errors.New("connection refused") },
			wantStatus:       models.StageStatusSuccess,
			wantSuccessful:   2,
			wantRequiredRate: 1.0,
			wantFailedSource: "machines",
		},
		{
			name: "required source fails",
			mutate: func(f *fakeAAS) {
				delete(f.properties, "urn:factory:submodel:simulation_data#job_templates")
			},
			wantStatus:       models.StageStatusSuccess,
			wantSuccessful:   2,
			wantRequiredRate: 0.5,
			wantFailedSource: "job_templates",
		},
		{
			name: "every source fails",
			mutate: func(f *fakeAAS) {
				f.properties = map[string]any{}
				f.shellsErr = errors.New("connection refused")
			},
			wantStatus:       models.StageStatusError,
			wantSuccessful:   0,
			wantRequiredRate: 0,
			wantFailedSource: "order_list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newFactoryAAS()
			tt.mutate(client)

			result, _ := execute(t, client, mixedManifest)

			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantSuccessful, result.SuccessfulSources)
			assert.InDelta(t, tt.wantRequiredRate, result.RequiredSuccessRate, 0.0001)

			for _, s := range result.Sources {
				if s.Name == tt.wantFailedSource {
					assert.False(t, s.Succeeded())
					assert.Contains(t, s.Error, tt.wantFailedSource)
					assert.Empty(t, s.Path)
				}
			}
		})
	}
}

func TestExecute_OnlyOptionalSources(t *testing.T) {
	t.Parallel()

	client := newFactoryAAS()
	client.properties = map[string]any{}

	result, _ := execute(t, client, `
data_sources:
  - name: extras
    type: aas_property
    required: false
    config: {submodel_id: urn:sm, property_path: extras}
  - name: machines
    type: aas_shell_collection
    required: false
    config:
      shell_filter: {id_glob: "Machine*"}
      combination_rules:
        - {type: submodel_property, submodel_id: "urn:cap:{shell_id}", property_path: capability, result_key: capability}
`)

	assert.Equal(t, models.StageStatusSuccess, result.Status)
	assert.Equal(t, 0, result.RequiredSourcesCount)
	assert.InDelta(t, 0.5, result.SuccessRate, 0.0001)
	assert.InDelta(t, 1.0, result.RequiredSuccessRate, 0.0001)

	machines := readRecords(t, result.Files()["machines"])
	assert.Len(t, machines, 2)
}

func TestExecute_ScalarAndStringValues(t *testing.T) {
	t.Parallel()

	client := &fakeAAS{properties: map[string]any{
		"urn:sm#count":  float64(7),
		"urn:sm#orders": `[{"id": "o1"}, {"id": "o2"}]`,
		"urn:sm#name":   "plain text",
	}}

	result, _ := execute(t, client, `
data_sources:
  - {name: count, type: aas_property, config: {submodel_id: urn:sm, property_path: count}}
  - {name: orders, type: aas_property, config: {submodel_id: urn:sm, property_path: orders}}
  - {name: name, type: aas_property, required: false, config: {submodel_id: urn:sm, property_path: name}}
`)

	files := result.Files()
	assert.Equal(t, []map[string]any{{"value": 7.0}}, readRecords(t, files["count"]))
	assert.Equal(t, []map[string]any{{"id": "o1"}, {"id": "o2"}}, readRecords(t, files["orders"]))

	// A string that is not JSON fails its source instead of being wrapped.
	assert.NotContains(t, files, "name")
	require.Len(t, result.Sources, 3)
	assert.Contains(t, result.Sources[2].Error, "not valid JSON")
	assert.Equal(t, 2, result.SuccessfulSources)
	assert.Equal(t, models.StageStatusSuccess, result.Status)
}

func TestExecute_ManifestErrors(t *testing.T) {
	t.Parallel()

	t.Run("malformed manifest", func(t *testing.T) {
		t.Parallel()

		goal, execCtx := setup(t, "data_sources:\n  - name: a\n    type: local_file\n    config: {}\n")

		_, err := binding.NewHandler(newFactoryAAS(), log.Discard()).Execute(context.Background(), goal, execCtx)
		require.Error(t, err)
		assert.True(t, models.IsManifestParsingError(err))
	})

	t.Run("no resolved manifest", func(t *testing.T) {
		t.Parallel()

		dir, err := workdir.NewManager(t.TempDir()).Create("g1")
		require.NoError(t, err)

		goal := testutil.CreateTestGoal()
		execCtx := models.NewExecutionContext("exec-1", goal.GoalID, dir, time.Now())

		_, err = binding.NewHandler(newFactoryAAS(), log.Discard()).Execute(context.Background(), goal, execCtx)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrManifestNotFound)
	})

	t.Run("falls back to the goal's model", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "m.yaml")
		require.NoError(t, os.WriteFile(path, []byte("data_sources: []\n"), 0o600))

		dir, err := workdir.NewManager(t.TempDir()).Create("g1")
		require.NoError(t, err)

		goal := testutil.CreateTestGoal(testutil.WithSelectedModel(testutil.CreateTestModel(func(m *models.ModelDescriptor) {
			m.ManifestPath = path
		})))
		execCtx := models.NewExecutionContext("exec-1", goal.GoalID, dir, time.Now())

		payload, err := binding.NewHandler(newFactoryAAS(), log.Discard()).Execute(context.Background(), goal, execCtx)
		require.NoError(t, err)
		assert.Equal(t, models.StageStatusSuccess, payload.StageStatus())
		assert.Equal(t, path, payload.(*models.BindingResult).ManifestPath)
	})
}
