package dispatch

import (
	"context"
	"maps"
	"net/http"
	"net/url"
	"sync"
)

// Request is a transport independent inbound request.
type Request struct {
	Method string
	// Path is the route path, without the query string.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
	// RemoteAddr is the client address, after any trusted proxy resolution.
	RemoteAddr string
	// ID is a unique request identifier, used for correlating logs.
	ID string
}

// UserAgent returns the User-Agent header of the request.
func (r *Request) UserAgent() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get("User-Agent")
}

// RequestContext is the state of a single request, as seen by handlers. It's
// immutable: every modifier returns a new value.
type RequestContext struct {
	params        Params
	authenticated bool
	demo          bool
	method        string
	userAgent     string
	claims        map[string]any
}

// Params returns a copy of the request parameters.
func (rc RequestContext) Params() Params { return rc.params.Clone() }

// Authenticated returns true if the credential was accepted by the
// authentication handler.
func (rc RequestContext) Authenticated() bool { return rc.authenticated }

// Demo returns true if the authenticated identity has reduced trust.
func (rc RequestContext) Demo() bool { return rc.demo }

// Method returns the HTTP method of the request.
func (rc RequestContext) Method() string { return rc.method }

// UserAgent returns the User-Agent of the request.
func (rc RequestContext) UserAgent() string { return rc.userAgent }

// Claims returns a copy of the identity claims.
func (rc RequestContext) Claims() map[string]any { return maps.Clone(rc.claims) }

// Identity returns a snapshot of the request identity.
func (rc RequestContext) Identity() Identity {
	return Identity{
		Authenticated: rc.authenticated,
		Demo:          rc.demo,
		claims:        maps.Clone(rc.claims),
	}
}

// WithParams returns a copy of the context with the parameters replaced. The
// injected parameters always reflect the context state.
func (rc RequestContext) WithParams(p Params) RequestContext {
	p = p.Clone()
	for k, v := range rc.claims {
		p["_"+k] = v
	}
	p[ParamMethod] = rc.method
	p[ParamUserAgent] = rc.userAgent
	p[ParamAuthenticated] = rc.authenticated
	p[ParamDemo] = rc.demo
	rc.params = p
	return rc
}

// withIdentity returns a copy of the context marked as authenticated with the
// given claims.
func (rc RequestContext) withIdentity(claims map[string]any) RequestContext {
	rc.authenticated = true
	rc.claims = maps.Clone(claims)
	rc.demo = truthy(claims["demo"])
	return rc.WithParams(rc.params)
}

// Identity is a read-only snapshot of the identity a request was made with.
type Identity struct {
	Authenticated bool
	Demo          bool
	claims        map[string]any
}

// Claim returns the value of an identity claim.
func (i Identity) Claim(key string) (any, bool) {
	v, ok := i.claims[key]
	return v, ok
}

// Claims returns a copy of all identity claims.
func (i Identity) Claims() map[string]any {
	return maps.Clone(i.claims)
}

type contextKey string

const (
	contextKeyIdentity contextKey = "identity"
	contextKeyRequest  contextKey = "request"
	contextKeyResponse contextKey = "response"
)

// IdentityFrom returns the identity of the request being dispatched.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKeyIdentity).(Identity)
	return id, ok
}

// RequestFrom returns the request being dispatched.
func RequestFrom(ctx context.Context) (*Request, bool) {
	req, ok := ctx.Value(contextKeyRequest).(*Request)
	return req, ok
}

// SetMaxAge overrides the Cache-Control max-age of the response for the
// request being dispatched. It's ignored for requests made with a credential,
// and if called outside of a dispatch.
func SetMaxAge(ctx context.Context, seconds int) {
	if meta, ok := ctx.Value(contextKeyResponse).(*responseMeta); ok {
		meta.mu.Lock()
		meta.maxAge = &seconds
		meta.mu.Unlock()
	}
}

type responseMeta struct {
	mu     sync.Mutex
	maxAge *int
}

func (m *responseMeta) getMaxAge() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxAge == nil {
		return 0, false
	}
	return *m.maxAge, true
}

func withDispatchValues(ctx context.Context, req *Request, id Identity, meta *responseMeta) context.Context {
	ctx = context.WithValue(ctx, contextKeyRequest, req)
	ctx = context.WithValue(ctx, contextKeyIdentity, id)
	return context.WithValue(ctx, contextKeyResponse, meta)
}
