package types

import (
	"net/http"

	"go.hackfix.me/switchboard/dispatch"
)

// NewRequest converts an HTTP request into a dispatch request. The path is
// kept escaped, and is decoded once by the route resolver. The body is read
// separately by a request processor.
func NewRequest(r *http.Request, requestID string) *dispatch.Request {
	return &dispatch.Request{
		Method:     r.Method,
		Path:       r.URL.EscapedPath(),
		Query:      r.URL.Query(),
		Header:     r.Header,
		RemoteAddr: r.RemoteAddr,
		ID:         requestID,
	}
}
