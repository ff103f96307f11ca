package cmd_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/dukex/goalgate/pkg/cmd"
	"github.com/dukex/goalgate/pkg/container"
	"github.com/dukex/goalgate/pkg/log"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/persistence/file"
	"github.com/dukex/goalgate/pkg/protocol"
	"github.com/dukex/goalgate/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configPath(t *testing.T, parts ...string) string {
	t.Helper()

	_, f, _, ok := runtime.Caller(0)
	require.True(t, ok)

	return filepath.Join(append([]string{filepath.Dir(f), "..", "..", "config"}, parts...)...)
}

func TestNewPersistence_File(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for _, url := range []string{
		"file://" + filepath.Join(t.TempDir(), "data"),
		filepath.Join(t.TempDir(), "plain"),
		"mysql://" + filepath.Join(t.TempDir(), "unsupported"),
	} {
		store, err := cmd.NewPersistence(ctx, log.Discard(), url)
		require.NoError(t, err, url)
		assert.IsType(t, &file.Persistence{}, store)
		require.NoError(t, store.HealthCheck(ctx), url)
	}

	_, err := cmd.NewPersistence(ctx, log.Discard(), "")
	require.Error(t, err)
}

func TestNewPersistence_BadRemoteURL(t *testing.T) {
	t.Parallel()

	_, err := cmd.NewPersistence(context.Background(), log.Discard(), "redis://localhost:6379/not-a-db")
	require.Error(t, err)
}

func TestNewEventBus(t *testing.T) {
	t.Parallel()

	bus, err := cmd.NewEventBus("none", "", log.Discard())
	require.NoError(t, err)
	assert.Nil(t, bus)

	bus, err = cmd.NewEventBus("gochannel", "", log.Discard())
	require.NoError(t, err)
	require.NotNil(t, bus)
	require.NoError(t, bus.Close())

	_, err = cmd.NewEventBus("kafka", " , ", log.Discard())
	require.Error(t, err)

	_, err = cmd.NewEventBus("nats", "", log.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported event bus provider")
}

func TestNewRegistry_BindsBuiltInStages(t *testing.T) {
	t.Parallel()

	deps := protocol.Dependencies{
		Logger: log.Discard(),
		AAS:    testutil.NewStaticAAS(nil, nil),
		Runner: container.NewDockerRunner("", 0, log.Discard()),
	}

	reg, err := cmd.NewRegistry(log.Discard(), filepath.Join(t.TempDir(), "no-plugins"), deps)
	require.NoError(t, err)

	stages := reg.Stages()
	assert.Len(t, stages, 3)

	for _, stage := range []string{models.StageModelResolution, models.StageDataBinding, models.StageSimulation} {
		_, err := reg.Handler(stage)
		require.NoError(t, err, stage)
	}
}

func TestNewEngine_SampleConfiguration(t *testing.T) {
	t.Parallel()

	engine, err := cmd.NewEngine(cmd.EngineFiles{
		Registry: configPath(t, "model_registry.json"),
		Ontology: configPath(t, "ontology.yaml"),
		Rules:    configPath(t, "rules.yaml"),
	}, log.Discard())
	require.NoError(t, err)

	sel, err := engine.SelectModel(context.Background(), testutil.CreateTestGoal())
	require.NoError(t, err)
	assert.Equal(t, "NSGA2SimulatorModel", sel.Model.ModelID)
	assert.Equal(t, "GoalPurposeMatch", sel.Provenance.RuleName)

	_, err = os.Stat(sel.Model.ManifestPath)
	require.NoError(t, err)
}

func TestNewEngine_ConfigErrors(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "missing.json")

	_, err := cmd.NewEngine(cmd.EngineFiles{Registry: missing, Rules: configPath(t, "rules.yaml")}, log.Discard())
	require.Error(t, err)
	assert.True(t, models.IsConfigError(err))

	_, err = cmd.NewEngine(cmd.EngineFiles{
		Registry: configPath(t, "model_registry.json"),
		Ontology: missing,
		Rules:    configPath(t, "rules.yaml"),
	}, log.Discard())
	require.Error(t, err)
	assert.True(t, models.IsConfigError(err))

	// Without an ontology the purpose rule cannot fire and the fallback wins.
	engine, err := cmd.NewEngine(cmd.EngineFiles{
		Registry: configPath(t, "model_registry.json"),
		Rules:    configPath(t, "rules.yaml"),
	}, log.Discard())
	require.NoError(t, err)

	sel, err := engine.SelectModel(context.Background(), testutil.CreateTestGoal())
	require.NoError(t, err)
	assert.Equal(t, "Goal3DefaultSimulator", sel.Provenance.RuleName)
}
