package mid

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/ahrav/specter/internal/api/errs"
	"github.com/ahrav/specter/pkg/common/logger"
	"github.com/ahrav/specter/pkg/web"
)

// Errors handles errors coming out of the call chain. Every error is logged;
// internal errors reach the client only as a generic message.
func Errors(log *logger.Logger) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			resp := next(ctx, r)
			err, isError := resp.(error)
			if !isError {
				return resp
			}

			var appErr *errs.Error
			if !errors.As(err, &appErr) {
				appErr = errs.Newf(errs.Internal, "Internal server error")
			}

			log.Error(ctx, "handled error during request",
				"err", err,
				"source_err_file", path.Base(appErr.FileName),
				"source_err_func", path.Base(appErr.FuncName))

			if appErr.Code == errs.Internal {
				return errs.Newf(errs.Internal, "Internal server error")
			}

			return appErr
		}

		return h
	}

	return m
}
