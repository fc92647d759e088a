package dispatch

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.hackfix.me/switchboard/route"
)

// Handler produces the payload for a route. It's registered once at startup
// and invoked concurrently for every matching request, so implementations must
// be safe for concurrent use.
type Handler interface {
	// Initialize is called before every Handle call. It must be idempotent.
	Initialize(ctx context.Context) error
	// Handle returns the response data, or nil if there's nothing at the
	// requested subroute.
	//
	// Parameter names starting with "_" belong to the dispatcher. Any such
	// name sent by the client, in the query or the body, is dropped before
	// Handle is called. The dispatcher then sets ParamMethod, ParamUserAgent,
	// ParamAuthenticated and ParamDemo, and every claim k returned by the
	// authentication handler as "_k". Handlers must use names without the
	// "_" prefix for client input.
	Handle(ctx context.Context, route, subroute string, params Params) (any, error)
	// Documentation returns human readable usage docs for the route.
	Documentation(route string) []Doc
}

// Doc describes a single operation supported by a handler.
type Doc struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Description string            `json:"description"`
	Response    string            `json:"response,omitempty"`
}

// HandlerFunc adapts a function to the Handler interface. It needs no
// initialization and has no documentation.
type HandlerFunc func(ctx context.Context, route, subroute string, params Params) (any, error)

var _ Handler = HandlerFunc(nil)

// Initialize implements Handler.
func (HandlerFunc) Initialize(context.Context) error { return nil }

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, route, subroute string, params Params) (any, error) {
	return f(ctx, route, subroute, params)
}

// Documentation implements Handler.
func (HandlerFunc) Documentation(string) []Doc { return nil }

// Registry maps handler IDs to Handler implementations.
type Registry struct {
	mu       sync.RWMutex
	handlers map[route.HandlerID]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[route.HandlerID]Handler{}}
}

// Register adds a handler under the given ID.
func (r *Registry) Register(id route.HandlerID, h Handler) error {
	if id == "" {
		return fmt.Errorf("handler ID must not be empty")
	}
	if h == nil {
		return fmt.Errorf("handler '%s' is nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[id]; ok {
		return fmt.Errorf("handler '%s' is already registered", id)
	}
	r.handlers[id] = h

	return nil
}

// MustRegister is like Register, but panics on error.
func (r *Registry) MustRegister(id route.HandlerID, h Handler) {
	if err := r.Register(id, h); err != nil {
		panic(err)
	}
}

// Get returns the handler registered under id.
func (r *Registry) Get(id route.HandlerID) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[id]
	return h, ok
}

// IDs returns the sorted IDs of all registered handlers.
func (r *Registry) IDs() []route.HandlerID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.handlers))
}

// Validate returns an error if any binding in the table refers to a handler
// that isn't registered.
func (r *Registry) Validate(t *route.Table) error {
	for _, b := range t.Bindings() {
		if _, ok := r.Get(b.Handler); !ok {
			return fmt.Errorf("%s: handler '%s' is not registered", b, b.Handler)
		}
	}
	return nil
}
