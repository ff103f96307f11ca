package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/goalgate/pkg/container"
	"github.com/dukex/goalgate/pkg/log"
	"github.com/dukex/goalgate/pkg/models"
	"github.com/dukex/goalgate/pkg/protocol"
	"github.com/dukex/goalgate/pkg/registry"
	"github.com/dukex/goalgate/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	id string
}

func (h *stubHandler) ID() string { return h.id }

func (h *stubHandler) Execute(context.Context, *models.Goal, *models.ExecutionContext) (models.StagePayload, error) {
	return &models.ResolutionResult{Status: models.StageStatusSuccess, HandlerID: h.id}, nil
}

type stubFactory struct {
	err error
}

func (f *stubFactory) Create(config map[string]any, _ protocol.Dependencies) (protocol.StageHandler, error) {
	if f.err != nil {
		return nil, f.err
	}

	id, _ := config["id"].(string)

	return &stubHandler{id: id}, nil
}

func (f *stubFactory) ID() string          { return "stub" }
func (f *stubFactory) Name() string        { return "Stub" }
func (f *stubFactory) Description() string { return "stub handler" }
func (f *stubFactory) Stage() string       { return "custom" }

type nopRunner struct{}

func (nopRunner) Run(context.Context, container.Spec) (*container.Output, error) {
	return &container.Output{}, nil
}

func TestHandler_UnknownStage(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(log.Discard())

	_, err := r.Handler("simulation")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnknownStage)
}

func TestBind_ReplacesHandler(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(log.Discard())
	r.Bind("simulation", &stubHandler{id: "first"})
	r.Bind("simulation", &stubHandler{id: "second"})

	h, err := r.Handler("simulation")
	require.NoError(t, err)
	assert.Equal(t, "second", h.ID())
	assert.Equal(t, map[string]string{"simulation": "second"}, r.Stages())
}

func TestBindFactory(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(log.Discard())
	r.RegisterFactory(&stubFactory{})

	require.NoError(t, r.BindFactory("", "stub", map[string]any{"id": "default-stage"}, protocol.Dependencies{}))
	require.NoError(t, r.BindFactory("other", "stub", map[string]any{"id": "explicit"}, protocol.Dependencies{}))

	h, err := r.Handler("custom")
	require.NoError(t, err)
	assert.Equal(t, "default-stage", h.ID())

	h, err = r.Handler("other")
	require.NoError(t, err)
	assert.Equal(t, "explicit", h.ID())

	err = r.BindFactory("", "missing", nil, protocol.Dependencies{})
	assert.ErrorContains(t, err, "not registered")
}

func TestBindFactory_CreateError(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(log.Discard())
	r.RegisterFactory(&stubFactory{err: errors.New("bad config")})

	err := r.BindFactory("", "stub", nil, protocol.Dependencies{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad config")

	_, err = r.Handler("custom")
	assert.ErrorIs(t, err, models.ErrUnknownStage)
}

func TestRegisterDefaultHandlers(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(log.Discard())

	err := r.RegisterDefaultHandlers(protocol.Dependencies{
		Logger: log.Discard(),
		AAS:    testutil.NewStaticAAS(nil, nil),
		Runner: nopRunner{},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		models.StageModelResolution: "ModelResolutionHandler",
		models.StageDataBinding:     "YamlBindingHandler",
		models.StageSimulation:      "SimulationHandler",
	}, r.Stages())

	ids := []string{}
	for _, f := range r.Factories() {
		ids = append(ids, f.ID())
	}

	assert.Equal(t, []string{"ModelResolutionHandler", "SimulationHandler", "YamlBindingHandler"}, ids)
}

func TestRegisterDefaultHandlers_MissingDependencies(t *testing.T) {
	t.Parallel()

	r := registry.NewRegistry(log.Discard())

	err := r.RegisterDefaultHandlers(protocol.Dependencies{Logger: log.Discard()})
	require.Error(t, err)
	assert.ErrorContains(t, err, "AAS client")
}
