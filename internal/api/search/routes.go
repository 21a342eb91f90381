// Package search binds the search, cancel and download endpoints.
package search

import (
	"context"
	"io"
	"net/http"

	"github.com/ahrav/specter/internal/api/mid"
	appsession "github.com/ahrav/specter/internal/app/session"
	"github.com/ahrav/specter/internal/domain/session"
	"github.com/ahrav/specter/pkg/common"
	"github.com/ahrav/specter/pkg/common/logger"
	"github.com/ahrav/specter/pkg/web"
)

// Sessions starts and cancels searches.
type Sessions interface {
	Start(ctx context.Context, target session.Target) (*appsession.Stream, error)
	Cancel(ctx context.Context, id string) bool
}

// Artifacts gives access to finished result files.
type Artifacts interface {
	Open(ctx context.Context, name session.ArtifactName) (io.ReadCloser, session.ArtifactInfo, error)
	Remove(ctx context.Context, name session.ArtifactName) error
}

// Metrics records request level search metrics.
type Metrics interface {
	IncSearchRequestsTotal(ctx context.Context)
	IncSearchRequestErrors(ctx context.Context, reason string)
	IncDownloadsTotal(ctx context.Context, status int)
}

// Config contains the dependencies needed by the search handlers.
type Config struct {
	Log        *logger.Logger
	Sessions   Sessions
	Artifacts  Artifacts
	Limiter    *common.KeyedRateLimiter
	TrustProxy bool
	Metrics    Metrics
}

// Routes binds all the search endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	var searchMW []web.MidFunc
	if cfg.Limiter != nil {
		searchMW = append(searchMW, mid.RateLimit(cfg.Limiter, cfg.TrustProxy))
	}

	app.HandlerFunc(http.MethodGet, version, "/search", search(cfg), searchMW...)
	app.HandlerFunc(http.MethodPost, version, "/cancel/{id}", cancel(cfg))
	app.HandlerFunc(http.MethodGet, version, "/download/{filename}", download(cfg))
}
