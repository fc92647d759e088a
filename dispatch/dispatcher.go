package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"go.hackfix.me/switchboard/route"
)

// DefaultMaxAge is the default Cache-Control max-age of responses, in seconds.
const DefaultMaxAge = 86400

// ParameterHook may rewrite the parameters of a request after authentication
// and before the handler is invoked. Injected parameters can't be changed.
type ParameterHook func(ctx context.Context, req *Request, params Params) (Params, error)

// Response is a successful dispatch result.
type Response struct {
	StatusCode int
	Header     http.Header
	Data       any
	// MaxAge is the Cache-Control max-age, in seconds.
	MaxAge int
}

// Dispatcher routes requests to handlers. It's safe for concurrent use.
type Dispatcher struct {
	resolver *route.Resolver
	registry *Registry
	gate     *Gate
	header   string
	builder  Builder
	policy   *Policy
	hooks    []ParameterHook
	observer Observer
	maxAge   int
	logger   *slog.Logger
	timeNow  func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDefaultMaxAge sets the max-age of responses to requests made without a
// credential.
func WithDefaultMaxAge(seconds int) Option {
	return func(d *Dispatcher) {
		d.maxAge = seconds
	}
}

// WithAuthHeader sets the request header carrying the credential.
func WithAuthHeader(header string) Option {
	return func(d *Dispatcher) {
		d.header = header
	}
}

// WithParameterHooks adds hooks that run after authentication.
func WithParameterHooks(hooks ...ParameterHook) Option {
	return func(d *Dispatcher) {
		d.hooks = append(d.hooks, hooks...)
	}
}

// WithObserver sets the observer of dispatch outcomes.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger.With("component", "dispatcher")
	}
}

// WithTimeSource sets the function used for measuring latency.
func WithTimeSource(timeNow func() time.Time) Option {
	return func(d *Dispatcher) {
		d.timeNow = timeNow
	}
}

// New returns a new Dispatcher.
func New(resolver *route.Resolver, registry *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver: resolver,
		registry: registry,
		policy:   NewPolicy(),
		observer: nopObserver{},
		maxAge:   DefaultMaxAge,
		logger:   slog.Default().With("component", "dispatcher"),
		timeNow:  time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}
	d.gate = NewGate(resolver, registry, d.header, d.logger)
	d.gate.observer = d.observer

	return d
}

// Gate returns the authentication gate of the dispatcher.
func (d *Dispatcher) Gate() *Gate {
	return d.gate
}

// Dispatch resolves req to a handler, authenticates and authorizes it, and
// invokes the handler. Every returned error is an *Error.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (resp *Response, rerr error) {
	start := d.timeNow()

	var (
		pattern   string
		handlerID route.HandlerID
	)
	defer func() {
		status := http.StatusOK
		if rerr != nil {
			derr := AsError(rerr)
			status = derr.StatusCode
			if derr.Kind == KindInternal {
				d.logger.Error("failed dispatching request", "route", req.Path,
					"error", derr.Error(), "request_id", req.ID)
			}
		} else if resp != nil {
			status = resp.StatusCode
		}
		d.observer.ObserveDispatch(pattern, string(handlerID), status, d.timeNow().Sub(start))
	}()

	res, ok := d.resolver.Resolve(req.Path)
	if !ok {
		if strings.TrimRight(req.Path, "/") == "" {
			return &Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{},
				Data:       d.Usage(req.Query.Get("op")),
				MaxAge:     d.maxAge,
			}, nil
		}
		return nil, NotFound("Action not found.")
	}
	b := res.Binding
	pattern, handlerID = b.Pattern, b.Handler

	h, ok := d.registry.Get(b.Handler)
	if !ok {
		return nil, Internal(fmt.Errorf("handler '%s' for %s is not registered", b.Handler, b))
	}

	if !b.AllowsMethod(req.Method) {
		return nil, MethodNotAllowed(
			fmt.Sprintf("This request does not support HTTP method %s", req.Method))
	}

	rc := d.builder.Build(req, b)
	rc, credentialed, err := d.gate.Authenticate(ctx, req, rc)
	if err != nil {
		return nil, AsError(err)
	}

	maxAge := d.maxAge
	if credentialed {
		// Authenticated content is per identity, and mustn't leak through
		// shared caches.
		maxAge = 0
	}

	if rc, err = d.runHooks(ctx, req, rc); err != nil {
		return nil, AsError(err)
	}

	allowed, err := d.policy.Allow(rc, b)
	if err != nil {
		return nil, Internal(err)
	}
	if !allowed {
		d.logger.Warn("access denied", "route", req.Path, "role", RoleOf(rc), "request_id", req.ID)
		return nil, Forbidden("Access to this API is restricted to authenticated users.")
	}

	meta := &responseMeta{}
	hctx := withDispatchValues(ctx, req, rc.Identity(), meta)

	data, err := d.invoke(hctx, h, res, rc)

	d.logger.Debug(fmt.Sprintf("%.2f (ms) %s %s",
		float64(d.timeNow().Sub(start).Microseconds())/1000, req.Method, req.Path),
		"request_id", req.ID)

	if err != nil {
		return nil, AsError(err)
	}
	if isNil(data) {
		return nil, NotFound("Action not found.")
	}

	if override, ok := meta.getMaxAge(); ok && !credentialed {
		maxAge = override
	}

	header := http.Header{}
	if b.Deprecated {
		header.Set("Deprecation", "true")
		d.logger.Warn("deprecated route requested", "route", b.Pattern, "request_id", req.ID)
	}

	return &Response{StatusCode: http.StatusOK, Header: header, Data: data, MaxAge: maxAge}, nil
}

func (d *Dispatcher) runHooks(ctx context.Context, req *Request, rc RequestContext) (RequestContext, error) {
	for _, hook := range d.hooks {
		params, err := hook(ctx, req, rc.Params())
		if err != nil {
			return rc, err
		}
		rc = rc.WithParams(params)
	}
	return rc, nil
}

// invoke initializes and runs the handler, converting panics into internal
// faults.
func (d *Dispatcher) invoke(
	ctx context.Context, h Handler, res *route.Resolved, rc RequestContext,
) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Internal(fmt.Errorf("handler panic: %v", r))
		}
	}()

	if err = h.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed initializing handler: %w", err)
	}

	return h.Handle(ctx, res.BaseRoute, res.Subroute, rc.Params())
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
