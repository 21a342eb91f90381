package mid

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/ahrav/specter/internal/api/errs"
	"github.com/ahrav/specter/pkg/common"
	"github.com/ahrav/specter/pkg/web"
)

// RateLimit rejects requests from a client address that exceeded its budget.
// When trustProxy is set the first X-Forwarded-For hop identifies the client.
func RateLimit(limiter *common.KeyedRateLimiter, trustProxy bool) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			if !limiter.Allow(ClientIP(r, trustProxy)) {
				return errs.Newf(errs.ResourceExhausted, "Too many requests. Try again later.")
			}
			return next(ctx, r)
		}

		return h
	}

	return m
}

// ClientIP returns the address used to key per-client limits.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
