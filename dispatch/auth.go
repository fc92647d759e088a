package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.hackfix.me/switchboard/route"
)

const (
	// AuthenticateRoute is the route of the handler that validates credentials.
	AuthenticateRoute = "/authenticate"
	// DefaultAuthHeader is the request header carrying the credential.
	DefaultAuthHeader = "X-Authorization"
)

// Gate authenticates requests that carry a credential by delegating to the
// handler bound to AuthenticateRoute.
type Gate struct {
	resolver *route.Resolver
	registry *Registry
	header   string
	logger   *slog.Logger
	observer Observer
}

// NewGate returns a new authentication gate. If header is empty,
// DefaultAuthHeader is used.
func NewGate(resolver *route.Resolver, registry *Registry, header string, logger *slog.Logger) *Gate {
	if header == "" {
		header = DefaultAuthHeader
	}
	return &Gate{
		resolver: resolver,
		registry: registry,
		header:   header,
		logger:   logger,
		observer: nopObserver{},
	}
}

// Header returns the name of the credential header.
func (g *Gate) Header() string {
	return g.header
}

// Credential returns the credential presented with req, if any.
func (g *Gate) Credential(req *Request) string {
	if req.Header == nil {
		return ""
	}
	return strings.TrimSpace(req.Header.Get(g.header))
}

// Authenticate validates the credential presented with req, and returns the
// updated context. presented is true if the request carried a credential,
// whether or not it was accepted. An invalid credential is not an error: the
// context is returned unauthenticated. If no handler is bound to
// AuthenticateRoute, authentication is skipped.
func (g *Gate) Authenticate(
	ctx context.Context, req *Request, rc RequestContext,
) (_ RequestContext, presented bool, _ error) {
	credential := g.Credential(req)
	if credential == "" {
		return rc, false, nil
	}

	res, ok := g.resolver.Resolve(AuthenticateRoute)
	if !ok {
		return rc, true, nil
	}

	h, ok := g.registry.Get(res.Binding.Handler)
	if !ok {
		return rc, true, Internal(fmt.Errorf("handler '%s' for route %s is not registered",
			res.Binding.Handler, AuthenticateRoute))
	}

	data, err := authenticate(ctx, h, credential, rc.Params())
	if err != nil {
		return rc, true, err
	}

	claims, success := authResult(data)
	g.observer.ObserveAuthentication(success)
	if !success {
		g.logger.Warn("invalid authentication", "token", credential, "request_id", req.ID)
		return rc, true, nil
	}

	g.logger.Debug("successful authentication", "request_id", req.ID)

	return rc.withIdentity(claims), true, nil
}

// authenticate runs the authentication handler, converting panics into
// internal faults.
func authenticate(ctx context.Context, h Handler, credential string, params Params) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, Internal(fmt.Errorf("authentication handler panic: %v", r))
		}
	}()

	if err = h.Initialize(ctx); err != nil {
		return nil, Internal(fmt.Errorf("failed initializing authentication handler: %w", err))
	}

	if data, err = h.Handle(ctx, AuthenticateRoute, credential, params); err != nil {
		return nil, AsError(err)
	}

	return data, nil
}

// authResult extracts the identity claims from the authentication handler
// result. Anything other than a map with success=true is a failure.
func authResult(data any) (map[string]any, bool) {
	var m map[string]any
	switch v := data.(type) {
	case map[string]any:
		m = v
	case Params:
		m = v
	default:
		return nil, false
	}

	if success, ok := m["success"].(bool); !ok || !success {
		return nil, false
	}

	claims := make(map[string]any, len(m)-1)
	for k, v := range m {
		if k != "success" {
			claims[k] = v
		}
	}

	return claims, true
}
