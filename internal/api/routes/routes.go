// Package routes binds all the routes served by the specter API.
package routes

import (
	"github.com/ahrav/specter/internal/api/health"
	"github.com/ahrav/specter/internal/api/mux"
	"github.com/ahrav/specter/internal/api/search"
	"github.com/ahrav/specter/pkg/web"
)

// Routes constructs an add value which provides the implementation of
// RouteAdder for specifying what routes to bind to this instance.
func Routes() add {
	return add{}
}

type add struct{}

// Add implements the RouteAdder interface.
func (add) Add(app *web.App, cfg mux.Config) {
	health.Routes(app, health.Config{
		Build:    cfg.Build,
		Log:      cfg.Log,
		ToolPath: cfg.ToolPath,
		Sessions: cfg.Sessions,
	})

	search.Routes(app, search.Config{
		Log:        cfg.Log,
		Sessions:   cfg.Sessions,
		Artifacts:  cfg.Artifacts,
		Limiter:    cfg.Limiter,
		TrustProxy: cfg.TrustProxy,
		Metrics:    cfg.Metrics,
	})
}
