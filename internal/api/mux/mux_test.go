package mux_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/specter/internal/api/mux"
	"github.com/ahrav/specter/internal/api/routes"
	appsession "github.com/ahrav/specter/internal/app/session"
	"github.com/ahrav/specter/internal/domain/session"
	"github.com/ahrav/specter/pkg/common/logger"
)

type busySessions struct{}

func (busySessions) Start(context.Context, session.Target) (*appsession.Stream, error) {
	return nil, session.ErrAdmissionRejected
}
func (busySessions) Cancel(context.Context, string) bool { return false }
func (busySessions) Active() int                         { return 1 }
func (busySessions) Capacity() int                       { return 1 }

type noArtifacts struct{}

func (noArtifacts) Open(context.Context, session.ArtifactName) (io.ReadCloser, session.ArtifactInfo, error) {
	return nil, session.ArtifactInfo{}, session.ErrArtifactNotFound
}
func (noArtifacts) Remove(context.Context, session.ArtifactName) error { return nil }

type nopAPIMetrics struct{}

func (nopAPIMetrics) IncRequestsTotal(context.Context, string, string, int)                 {}
func (nopAPIMetrics) ObserveRequestDuration(context.Context, string, string, time.Duration) {}
func (nopAPIMetrics) IncSearchRequestsTotal(context.Context)                                {}
func (nopAPIMetrics) IncSearchRequestErrors(context.Context, string)                        {}
func (nopAPIMetrics) IncDownloadsTotal(context.Context, int)                                {}

func newHandler(opts ...func(*mux.Options)) http.Handler {
	cfg := mux.Config{
		Build:     "test",
		Log:       logger.Noop(),
		Tracer:    noop.NewTracerProvider().Tracer("test"),
		Sessions:  busySessions{},
		Artifacts: noArtifacts{},
		Metrics:   nopAPIMetrics{},
	}
	return mux.WebAPI(cfg, routes.Routes(), opts...)
}

func TestWebAPI_SecurityHeaders(t *testing.T) {
	h := newHandler()

	for _, path := range []string{"/v1/liveness", "/v1/search?username=alice", "/v1/download/nope"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
			assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
			assert.Equal(t, "camera=(), microphone=(), geolocation=()", rec.Header().Get("Permissions-Policy"))
			assert.Equal(t, "1; mode=block", rec.Header().Get("X-XSS-Protection"))
		})
	}
}

func TestWebAPI_Saturated(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/search?username=alice", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Server is busy. Please try again shortly."}`, rec.Body.String())
}

func TestWebAPI_CORS(t *testing.T) {
	tests := []struct {
		name            string
		origins         []string
		origin          string
		wantAllowOrigin string
		wantCredentials string
	}{
		{name: "wildcard_without_credentials", origins: []string{"*"}, origin: "https://a.example", wantAllowOrigin: "*"},
		{name: "configured_origin_with_credentials", origins: []string{"https://a.example"}, origin: "https://a.example", wantAllowOrigin: "https://a.example", wantCredentials: "true"},
		{name: "other_origin", origins: []string{"https://a.example"}, origin: "https://b.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(mux.WithCORS(tt.origins))

			req := httptest.NewRequest(http.MethodOptions, "/v1/search", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.wantAllowOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCredentials, rec.Header().Get("Access-Control-Allow-Credentials"))
			assert.Equal(t, "X-Search-Id", rec.Header().Get("Access-Control-Expose-Headers"))
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		})
	}
}

func TestWebAPI_StaticSite(t *testing.T) {
	static := fstest.MapFS{
		"public/index.html": {Data: []byte("<html>specter</html>")},
	}
	h := newHandler(mux.WithFileServer(static, "public"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "specter")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/liveness", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
