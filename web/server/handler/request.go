package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.hackfix.me/switchboard/dispatch"
	"go.hackfix.me/switchboard/web/server/types"
)

const maxBodySize = 1024 * 1024 // 1MiB

// RequestProcessor processes incoming requests and can modify the dispatch
// request or context.
type RequestProcessor func(ctx context.Context, r *http.Request, req *dispatch.Request) (context.Context, error)

// ReadBody reads the request body into req. It enforces a maximum body size
// limit to prevent resource exhaustion.
func ReadBody(ctx context.Context, r *http.Request, req *dispatch.Request) (context.Context, error) {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return ctx, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return ctx, types.NewError(http.StatusBadRequest, fmt.Sprintf("failed reading request body: %s", err))
	}
	if len(body) > maxBodySize {
		return ctx, types.NewError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	req.Body = body

	return ctx, nil
}

// StripBasePath removes basePath from the request path. Requests outside of
// basePath are not found, unless they're routed by query.
func StripBasePath(basePath string) RequestProcessor {
	basePath = "/" + strings.Trim(basePath, "/")
	return func(ctx context.Context, _ *http.Request, req *dispatch.Request) (context.Context, error) {
		if basePath == "/" || req.Query.Has(dispatch.ReservedEntryPoint) {
			return ctx, nil
		}

		rest, ok := strings.CutPrefix(req.Path, basePath)
		if !ok || (rest != "" && rest[0] != '/') {
			return ctx, dispatch.NotFound("Action not found.")
		}
		req.Path = rest
		if req.Path == "" {
			req.Path = "/"
		}

		return ctx, nil
	}
}

// QueryRoute routes requests carrying the entryPoint value in the eID query
// parameter by the route query parameter instead of the request path, e.g.
// /?eID=api&route=/members/42. Requests with another eID value are not found.
// The route value was already decoded with the query, so it's escaped again
// to match the form of request paths.
func QueryRoute(entryPoint string) RequestProcessor {
	return func(ctx context.Context, _ *http.Request, req *dispatch.Request) (context.Context, error) {
		if !req.Query.Has(dispatch.ReservedEntryPoint) {
			return ctx, nil
		}
		if entryPoint == "" || req.Query.Get(dispatch.ReservedEntryPoint) != entryPoint {
			return ctx, dispatch.NotFound("Action not found.")
		}

		route := req.Query.Get(dispatch.ReservedRoute)
		if route == "" {
			route = "/"
		} else if route[0] != '/' {
			route = "/" + route
		}
		req.Path = escapeRoute(route)

		return ctx, nil
	}
}

func escapeRoute(route string) string {
	segments := strings.Split(route, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
