package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/specter/internal/api/errs"
	"github.com/ahrav/specter/internal/domain/session"
	"github.com/ahrav/specter/pkg/web"
)

var registerOnce sync.Once

func registerTargetTag() {
	registerOnce.Do(func() {
		// Only fails on an empty tag.
		_ = errs.RegisterValidation("target", session.ValidateTarget)
	})
}

// searchRequest is the query of a search request.
type searchRequest struct {
	Username string `validate:"target"`
}

// search starts a session and streams its events as server-sent events until
// the terminal event or until the client goes away.
func search(cfg Config) web.HandlerFunc {
	registerTargetTag()

	return func(ctx context.Context, r *http.Request) web.Encoder {
		cfg.Metrics.IncSearchRequestsTotal(ctx)

		req := searchRequest{Username: strings.TrimSpace(r.URL.Query().Get("username"))}
		if err := errs.Check(req); err != nil {
			cfg.Metrics.IncSearchRequestErrors(ctx, "invalid_target")
			return errs.New(errs.InvalidArgument, err)
		}

		target, err := session.NewTarget(req.Username)
		if err != nil {
			cfg.Metrics.IncSearchRequestErrors(ctx, "invalid_target")
			return errs.New(errs.InvalidArgument, err)
		}

		st, err := cfg.Sessions.Start(ctx, target)
		if err != nil {
			if errors.Is(err, session.ErrAdmissionRejected) {
				cfg.Metrics.IncSearchRequestErrors(ctx, "busy")
				return errs.Newf(errs.Unavailable, "Server is busy. Please try again shortly.")
			}
			if errors.Is(err, session.ErrShuttingDown) {
				cfg.Metrics.IncSearchRequestErrors(ctx, "shutting_down")
				return errs.Newf(errs.Unavailable, "Server is shutting down.")
			}
			return errs.New(errs.Internal, fmt.Errorf("starting search: %w", err))
		}
		defer st.Close()

		w := web.GetWriter(ctx)
		rc := http.NewResponseController(w)
		// Streams outlive the server write timeout. Not every writer supports
		// deadlines.
		_ = rc.SetWriteDeadline(time.Time{})

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		h.Set("X-Search-Id", st.ID())
		w.WriteHeader(http.StatusOK)
		web.SetStatusCode(ctx, http.StatusOK)

		for {
			select {
			case ev, ok := <-st.Events():
				if !ok {
					return web.NewNoResponse()
				}
				if err := writeEvent(w, rc, ev); err != nil {
					cfg.Log.Info(ctx, "search stream write failed", "search_id", st.ID(), "error", err)
					return web.NewNoResponse()
				}
				if ev.Terminal() {
					return web.NewNoResponse()
				}

			case <-ctx.Done():
				cfg.Log.Info(ctx, "search client disconnected", "search_id", st.ID())
				return web.NewNoResponse()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, ev session.Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
