// Package mux provides support to bind domain level routes
// to the application mux.
package mux

import (
	"context"
	"io/fs"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/specter/internal/api"
	"github.com/ahrav/specter/internal/api/health"
	"github.com/ahrav/specter/internal/api/mid"
	"github.com/ahrav/specter/internal/api/search"
	"github.com/ahrav/specter/pkg/common"
	"github.com/ahrav/specter/pkg/common/logger"
	"github.com/ahrav/specter/pkg/web"
)

// StaticSite represents a static site to run.
type StaticSite struct {
	static    fs.FS
	staticDir string
}

// Options represent optional parameters.
type Options struct {
	corsOrigin []string
	sites      []StaticSite
}

// WithCORS provides configuration options for CORS.
func WithCORS(origins []string) func(opts *Options) {
	return func(opts *Options) {
		opts.corsOrigin = origins
	}
}

// WithFileServer provides configuration options for file server.
func WithFileServer(static fs.FS, dir string) func(opts *Options) {
	return func(opts *Options) {
		opts.sites = append(opts.sites, StaticSite{
			static:    static,
			staticDir: dir,
		})
	}
}

// Sessions is the session service the handlers drive.
type Sessions interface {
	search.Sessions
	health.Occupancy
}

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build      string
	Log        *logger.Logger
	Tracer     trace.Tracer
	Sessions   Sessions
	Artifacts  search.Artifacts
	Limiter    *common.KeyedRateLimiter
	ToolPath   string
	TrustProxy bool
	Metrics    api.APIMetrics
}

// RouteAdder defines behavior that sets the routes to bind for an instance
// of the service.
type RouteAdder interface {
	Add(app *web.App, cfg Config)
}

// WebAPI constructs a http.Handler with all application routes bound.
func WebAPI(cfg Config, routeAdder RouteAdder, options ...func(opts *Options)) http.Handler {
	logger := func(ctx context.Context, msg string, args ...any) {
		cfg.Log.Info(ctx, msg, args...)
	}

	app := web.NewApp(
		logger,
		cfg.Tracer,
		mid.Otel(cfg.Tracer),
		mid.Logger(cfg.Log),
		mid.Metrics(cfg.Metrics),
		mid.Errors(cfg.Log),
		mid.Panics(),
	)

	var opts Options
	for _, option := range options {
		option(&opts)
	}

	if len(opts.corsOrigin) > 0 {
		app.EnableCORS(opts.corsOrigin)
	}

	routeAdder.Add(app, cfg)

	for _, site := range opts.sites {
		if err := app.FileServer(site.static, site.staticDir); err != nil {
			cfg.Log.Warn(context.Background(), "static site disabled", "dir", site.staticDir, "error", err)
		}
	}

	return mid.SecurityHeaders(app)
}
