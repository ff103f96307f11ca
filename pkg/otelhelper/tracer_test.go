package otelhelper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/goalgate/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndSetError(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := otelhelper.StartSpan(context.Background(), tracer, "goal.stage",
		attribute.String(otelhelper.StageKey, "simulation"))
	otelhelper.SetError(span, errors.New("container exited 1"), attribute.String(otelhelper.GoalIDKey, "g1"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)

	assert.Equal(t, "goal.stage", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "container exited 1", ended[0].Status().Description)
	assert.Contains(t, ended[0].Attributes(), attribute.String(otelhelper.StageKey, "simulation"))

	var names []string
	for _, e := range ended[0].Events() {
		names = append(names, e.Name)
	}

	assert.Contains(t, names, otelhelper.ErrorEvent)
}

func TestNoopTracer(t *testing.T) {
	t.Parallel()

	_, span := otelhelper.StartSpan(context.Background(), otelhelper.NoopTracer(), "noop")
	assert.False(t, span.IsRecording())
	span.End()
}

func TestSetError_NilIsIgnored(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := otelhelper.StartSpan(context.Background(), provider.Tracer("test"), "goal.execute")
	otelhelper.SetError(span, nil)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Empty(t, ended[0].Events())
}
