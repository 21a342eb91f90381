package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/ahrav/specter/pkg/common/logger"
	"github.com/ahrav/specter/pkg/web"
)

// Occupancy reports how many search slots are in use.
type Occupancy interface {
	Active() int
	Capacity() int
}

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build    string
	Log      *logger.Logger
	ToolPath string
	Sessions Occupancy
}

// Routes binds all the health check endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFuncNoMid(http.MethodGet, version, "/liveness", liveness(cfg))
	app.HandlerFuncNoMid(http.MethodGet, version, "/readiness", readiness(cfg))
}

// healthResponse represents the response for health check.
type healthResponse struct {
	Status string `json:"status"`
	Build  string `json:"build"`
}

// Encode implements the web.Encoder interface.
func (hr healthResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(hr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func liveness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		return healthResponse{
			Status: "ok",
			Build:  cfg.Build,
		}
	}
}

// readyResponse represents the response for readiness check.
type readyResponse struct {
	Status         string `json:"status"`
	Tool           bool   `json:"tool_available"`
	ActiveSearches int    `json:"active_searches"`
	MaxSearches    int    `json:"max_searches"`
}

// Encode implements the web.Encoder interface.
func (rr readyResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// HTTPStatus implements the httpStatus interface to set the response status code.
func (rr readyResponse) HTTPStatus() int {
	if !rr.Tool {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// readiness reports not ready while the tool executable is missing. A full
// gate is still ready: the search endpoint answers busy on its own.
func readiness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		resp := readyResponse{
			Status:         "ready",
			Tool:           toolAvailable(cfg.ToolPath),
			ActiveSearches: cfg.Sessions.Active(),
			MaxSearches:    cfg.Sessions.Capacity(),
		}
		if !resp.Tool {
			resp.Status = "tool_missing"
			cfg.Log.Warn(ctx, "readiness: tool not available", "tool_path", cfg.ToolPath)
		}
		return resp
	}
}

func toolAvailable(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
