package resolution_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/goalgate/pkg/handlers/resolution"
	"github.com/dukex/goalgate/pkg/log"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/testutil"
	"github.com/dukex/goalgate/pkg/workdir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun(t *testing.T) *models.ExecutionContext {
	t.Helper()

	dir, err := workdir.NewManager(t.TempDir()).Create("goal3-001")
	require.NoError(t, err)

	return models.NewExecutionContext("exec-1", "goal3-001", dir, time.Now())
}

func TestExecute_ResolvesManifest(t *testing.T) {
	t.Parallel()

	manifest := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("data_sources: []\n"), 0o600))

	goal := testutil.CreateTestGoal(testutil.WithSelectedModel(testutil.CreateTestModel(func(m *models.ModelDescriptor) {
		m.ManifestPath = manifest
	})))
	execCtx := newRun(t)

	payload, err := resolution.NewHandler(log.Discard()).Execute(context.Background(), goal, execCtx)
	require.NoError(t, err)

	result, ok := payload.(*models.ResolutionResult)
	require.True(t, ok)
	assert.Equal(t, models.StageStatusSuccess, result.Status)
	assert.Equal(t, resolution.ModelStatusReady, result.ModelStatus)
	assert.Equal(t, manifest, result.ManifestPath)
	assert.Equal(t, "NSGA2SimulatorModel", result.SelectedModel.ModelID)

	_, err = os.Stat(filepath.Join(execCtx.WorkDirectory, workdir.InputsDir, resolution.SnapshotName))
	assert.NoError(t, err)
}

func TestExecute_NoModel(t *testing.T) {
	t.Parallel()

	goal := testutil.CreateTestGoal()

	payload, err := resolution.NewHandler(log.Discard()).Execute(context.Background(), goal, newRun(t))
	require.NoError(t, err)

	result, ok := payload.(*models.ResolutionResult)
	require.True(t, ok)
	assert.Equal(t, models.StageStatusError, result.Status)
	assert.Nil(t, result.SelectedModel)
}

func TestExecute_MissingManifest(t *testing.T) {
	t.Parallel()

	goal := testutil.CreateTestGoal(testutil.WithSelectedModel(testutil.CreateTestModel(func(m *models.ModelDescriptor) {
		m.ManifestPath = filepath.Join(t.TempDir(), "nope.yaml")
	})))

	_, err := resolution.NewHandler(log.Discard()).Execute(context.Background(), goal, newRun(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrManifestNotFound))
	assert.True(t, models.IsManifestParsingError(err))
}
