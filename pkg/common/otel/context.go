package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const tracerKey ctxKey = 1

// InjectTracing stores the tracer in the context so downstream code can open
// child spans without holding a reference to the provider.
func InjectTracing(ctx context.Context, tracer trace.Tracer) context.Context {
	return context.WithValue(ctx, tracerKey, tracer)
}

// Tracer returns the tracer stored by InjectTracing, or a no-op tracer.
func Tracer(ctx context.Context) trace.Tracer {
	if t, ok := ctx.Value(tracerKey).(trace.Tracer); ok {
		return t
	}
	return trace.SpanFromContext(ctx).TracerProvider().Tracer("specter")
}

// GetTraceID returns the trace id from the current span context.
func GetTraceID(ctx context.Context) string {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return "00000000000000000000000000000000"
}
