package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorEvent is the span event added for every recorded failure.
const ErrorEvent = "goalgate.error"

// SetError marks span as failed. attrs are attached to the error event, for
// example the stage that aborted the run.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent(ErrorEvent, trace.WithAttributes(attrs...))
}
