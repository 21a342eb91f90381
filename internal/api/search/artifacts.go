package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ahrav/specter/internal/api/errs"
	"github.com/ahrav/specter/internal/domain/session"
	"github.com/ahrav/specter/pkg/web"
)

// cancelResponse reports whether a cancel request found a live session.
type cancelResponse struct {
	Status string `json:"status"`
	found  bool
}

// Encode implements the web.Encoder interface.
func (cr cancelResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(cr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// HTTPStatus implements the httpStatus interface to set the response status code.
func (cr cancelResponse) HTTPStatus() int {
	if cr.found {
		return http.StatusOK
	}
	return http.StatusNotFound
}

// cancel handles the request to cancel a live search.
func cancel(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		id := web.Param(r, "id")

		if !cfg.Sessions.Cancel(ctx, id) {
			return cancelResponse{Status: "not_found"}
		}
		return cancelResponse{Status: "cancelled", found: true}
	}
}

// download streams a result file to the client and removes it afterwards.
func download(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		name, err := session.ParseArtifactName(web.Param(r, "filename"))
		if err != nil {
			cfg.Metrics.IncDownloadsTotal(ctx, http.StatusBadRequest)
			return errs.Newf(errs.InvalidArgument, "invalid filename")
		}

		f, info, err := cfg.Artifacts.Open(ctx, name)
		if err != nil {
			if errors.Is(err, session.ErrArtifactNotFound) {
				cfg.Metrics.IncDownloadsTotal(ctx, http.StatusNotFound)
				return errs.Newf(errs.NotFound, "file not found")
			}
			return errs.New(errs.Internal, fmt.Errorf("opening artifact: %w", err))
		}

		w := web.GetWriter(ctx)
		h := w.Header()
		h.Set("Content-Type", "application/octet-stream")
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name.String()))
		h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
		w.WriteHeader(http.StatusOK)
		web.SetStatusCode(ctx, http.StatusOK)
		cfg.Metrics.IncDownloadsTotal(ctx, http.StatusOK)

		_, copyErr := io.Copy(w, f)
		if err := f.Close(); err != nil {
			cfg.Log.Warn(ctx, "closing artifact", "file", name.String(), "error", err)
		}
		if copyErr != nil {
			// Left in place for a retry; the sweeper removes it eventually.
			cfg.Log.Warn(ctx, "artifact transfer interrupted", "file", name.String(), "error", copyErr)
			return web.NewNoResponse()
		}

		if err := cfg.Artifacts.Remove(context.WithoutCancel(ctx), name); err != nil {
			cfg.Log.Warn(ctx, "removing downloaded artifact", "file", name.String(), "error", err)
		}

		return web.NewNoResponse()
	}
}
