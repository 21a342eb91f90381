package web

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	valuesKey ctxKey = iota + 1
	writerKey
	tracerKey
)

// Values represent state for each request.
type Values struct {
	TraceID    string
	Now        time.Time
	StatusCode int
}

func nowUTC() time.Time { return time.Now().UTC() }

func setValues(ctx context.Context, v *Values) context.Context {
	return context.WithValue(ctx, valuesKey, v)
}

// GetValues returns the values from the context.
func GetValues(ctx context.Context) *Values {
	v, ok := ctx.Value(valuesKey).(*Values)
	if !ok {
		return &Values{
			TraceID: "00000000-0000-0000-0000-000000000000",
			Now:     nowUTC(),
		}
	}

	return v
}

// GetTraceID returns the trace id from the context.
func GetTraceID(ctx context.Context) string {
	return GetValues(ctx).TraceID
}

// GetTime returns the time from the context.
func GetTime(ctx context.Context) time.Time {
	return GetValues(ctx).Now
}

func setStatusCode(ctx context.Context, statusCode int) {
	v, ok := ctx.Value(valuesKey).(*Values)
	if !ok {
		return
	}

	v.StatusCode = statusCode
}

// SetStatusCode records the status code for handlers that write the response
// themselves (see NoResponse) so the logging middleware reports it.
func SetStatusCode(ctx context.Context, statusCode int) {
	setStatusCode(ctx, statusCode)
}

func setWriter(ctx context.Context, w http.ResponseWriter) context.Context {
	return context.WithValue(ctx, writerKey, w)
}

// GetWriter returns the underlying writer for the request. Handlers that
// stream use it and then return NoResponse.
func GetWriter(ctx context.Context) http.ResponseWriter {
	v, ok := ctx.Value(writerKey).(http.ResponseWriter)
	if !ok {
		return nil
	}

	return v
}

func setTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	return context.WithValue(ctx, tracerKey, tracer)
}

// GetTracer returns the tracer registered with the App.
func GetTracer(ctx context.Context) trace.Tracer {
	v, ok := ctx.Value(tracerKey).(trace.Tracer)
	if !ok {
		return nil
	}

	return v
}
