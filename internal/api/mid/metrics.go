package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/ahrav/specter/pkg/web"
)

// RequestRecorder records per request metrics.
type RequestRecorder interface {
	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
}

// Metrics records the count and duration of every request. The matched route
// pattern is used as the path label to keep cardinality bounded.
func Metrics(rec RequestRecorder) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			start := time.Now()
			resp := next(ctx, r)

			path := r.Pattern
			if path == "" {
				path = r.URL.Path
			}
			rec.IncRequestsTotal(ctx, r.Method, path, statusOf(web.GetValues(ctx), resp))
			rec.ObserveRequestDuration(ctx, r.Method, path, time.Since(start))

			return resp
		}

		return h
	}

	return m
}
