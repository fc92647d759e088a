package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"

	"go.hackfix.me/switchboard/web/server/types"
)

// minGzipSize is the smallest response that's worth compressing.
const minGzipSize = 1024

// ResponseProcessor processes outgoing responses and can modify the response or context.
type ResponseProcessor func(ctx context.Context, r *http.Request, resp *types.Response) (context.Context, error)

// CacheControl sets the Cache-Control header of successful responses.
// Failed responses are never cached.
func CacheControl(ctx context.Context, _ *http.Request, resp *types.Response) (context.Context, error) {
	if resp.OK() {
		resp.Header.Set("Cache-Control", fmt.Sprintf("max-age=%d", resp.MaxAge))
	} else {
		resp.Header.Set("Cache-Control", "no-store")
	}

	return ctx, nil
}

// Gzip compresses the response data if the client accepts it.
func Gzip(ctx context.Context, r *http.Request, resp *types.Response) (context.Context, error) {
	resp.Header.Add("Vary", "Accept-Encoding")

	data := getResponseData(ctx)
	if len(data) < minGzipSize || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
		return ctx, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return ctx, fmt.Errorf("failed compressing response: %w", err)
	}
	if err := zw.Close(); err != nil {
		return ctx, fmt.Errorf("failed compressing response: %w", err)
	}

	resp.Header.Set("Content-Encoding", "gzip")

	return setResponseData(ctx, buf.Bytes()), nil
}

func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.TrimSpace(coding) != "gzip" {
			continue
		}
		return strings.ReplaceAll(params, " ", "") != "q=0"
	}
	return false
}

func writeResponse(ctx context.Context, w http.ResponseWriter, r *http.Request, resp *types.Response) error {
	data := getResponseData(ctx)

	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/octet-stream")
	}

	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return nil
	}
	_, err := w.Write(data)

	return err //nolint:wrapcheck // Wrapped by caller.
}
