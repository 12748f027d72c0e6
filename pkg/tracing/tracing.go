// Package tracing wraps the OpenTelemetry tracer used by every layer. Until
// NewProvider installs a tracer, spans are no-ops and no trace ids are issued.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan opens a child span named "pkg.Type.Method". Attributes are attached
// only when a tracer is installed.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetActiveSpan returns the recording span on ctx, or nil
func GetActiveSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return span
	}
	return nil
}

// GetTraceID is echoed in error responses so a failed request can be found in the tracing backend
func GetTraceID(ctx context.Context) string {
	if span := GetActiveSpan(ctx); span != nil {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
