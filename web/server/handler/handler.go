package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	aerrors "go.hackfix.me/switchboard/app/errors"
	"go.hackfix.me/switchboard/dispatch"
	"go.hackfix.me/switchboard/web/server/middleware"
	"go.hackfix.me/switchboard/web/server/types"
)

// Dispatch creates an HTTP handler function that converts requests with the
// pipeline, dispatches them, and writes the serialized result.
func Dispatch(d *dispatch.Dispatcher, p *Pipeline, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			ctx  = r.Context()
			req  = types.NewRequest(r, middleware.RequestIDFrom(ctx))
			resp *types.Response
			err  error
		)

		// Response handling is deferred, since it should happen in both success and
		// error scenarios.
		defer func() {
			// A panic escaping dispatch leaves no response to serialize.
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler { //nolint:errorlint,err113 // Sentinel panic value.
					panic(rec)
				}
				resp = types.NewErrorResponse(dispatch.Internal(fmt.Errorf("dispatch panic: %v", rec)))
				aerrors.Log(logger, aerrors.NewWithCause("failed dispatching request", resp.Err, "request_id", req.ID))
			} else if resp == nil {
				resp = types.NewErrorResponse(dispatch.Internal(fmt.Errorf("no response for %s %s", req.Method, req.Path)))
			}

			// 3. Response serialization
			if ctx, err = p.serializer.Serialize(ctx, r, resp); err != nil {
				aerrors.Log(logger, aerrors.NewWithCause("failed serializing response", err, "request_id", req.ID))
				resp.SetError(types.NewError(http.StatusInternalServerError, err.Error()))
				ctx = setResponseData(ctx, []byte(http.StatusText(http.StatusInternalServerError)))
			}

			// 4. Response processing
			for _, process := range p.responseProcessors {
				if ctx, err = process(ctx, r, resp); err != nil {
					aerrors.Log(logger, aerrors.NewWithCause("failed processing response", err, "request_id", req.ID))
					break
				}
			}

			// 5. Write the response
			if err = writeResponse(ctx, w, r, resp); err != nil {
				aerrors.Log(logger, aerrors.NewWithCause("failed writing response", err, "request_id", req.ID))
			}
		}()

		// 1. Request processing
		for _, process := range p.requestProcessors {
			if ctx, err = process(ctx, r, req); err != nil {
				resp = types.NewErrorResponse(dispatch.AsError(err))
				return
			}
		}

		// 2. Dispatch
		resp = types.NewResponse(d.Dispatch(ctx, req))
	}
}
