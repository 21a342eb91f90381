package mid

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/specter/pkg/common/otel"
	"github.com/ahrav/specter/pkg/web"
)

// Otel stores the tracer in the context and names the request span after the
// matched route. Error responses mark the span as failed.
func Otel(tracer trace.Tracer) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			ctx = otel.InjectTracing(ctx, tracer)

			span := trace.SpanFromContext(ctx)
			if r.Pattern != "" {
				span.SetName(r.Pattern)
				span.SetAttributes(attribute.String("http.route", r.Pattern))
			}

			resp := next(ctx, r)
			if err, ok := resp.(error); ok {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}

			return resp
		}

		return h
	}

	return m
}
