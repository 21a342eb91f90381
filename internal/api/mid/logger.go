package mid

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ahrav/specter/pkg/common/logger"
	"github.com/ahrav/specter/pkg/web"
)

// Logger writes information about the request to the logs.
func Logger(log *logger.Logger) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			v := web.GetValues(ctx)

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path = fmt.Sprintf("%s?%s", path, r.URL.RawQuery)
			}

			log.Info(ctx, "request started", "method", r.Method, "path", path, "remoteaddr", r.RemoteAddr)

			resp := next(ctx, r)

			log.Info(ctx, "request completed", "method", r.Method, "path", path, "remoteaddr", r.RemoteAddr,
				"statuscode", statusOf(v, resp), "since", time.Since(v.Now).String())

			return resp
		}

		return h
	}

	return m
}

// statusOf reports the status the response will carry. Respond has not run
// yet when the middleware unwinds, so the encoder is inspected directly.
func statusOf(v *web.Values, resp web.Encoder) int {
	if v.StatusCode != 0 {
		return v.StatusCode
	}
	switch r := resp.(type) {
	case web.HTTPStatusSetter:
		return r.HTTPStatus()
	case nil:
		return http.StatusNoContent
	}
	return http.StatusOK
}
