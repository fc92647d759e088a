package route

import (
	"cmp"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// HandlerID identifies a handler registered with the dispatcher.
type HandlerID string

// Binding maps a URL pattern to a handler. The zero value of Methods allows
// only GET requests.
type Binding struct {
	// Pattern is an anchored regular expression fragment, usually a literal
	// path such as "/members".
	Pattern     string
	Handler     HandlerID
	Methods     []string
	ContentType string
	Restricted  bool
	// IsPattern makes the binding match only on the first segment of the
	// path. Deeper segments are passed to the handler as the subroute.
	IsPattern  bool
	Deprecated bool
	// Priority orders bindings within the pattern and literal groups. Higher
	// values are evaluated first, and bindings with equal priority are
	// evaluated in registration order.
	Priority int

	rx *regexp.Regexp
}

// AllowsMethod returns true if the binding accepts the given HTTP method. HEAD
// is accepted wherever GET is.
func (b Binding) AllowsMethod(method string) bool {
	if strings.EqualFold(method, http.MethodHead) {
		method = http.MethodGet
	}
	if len(b.Methods) == 0 {
		return method == http.MethodGet
	}
	return slices.ContainsFunc(b.Methods, func(m string) bool {
		return strings.EqualFold(m, method)
	})
}

// AllowedMethods returns the methods accepted by the binding, as configured.
// HEAD is implied by GET and isn't listed.
func (b Binding) AllowedMethods() []string {
	if len(b.Methods) == 0 {
		return []string{http.MethodGet}
	}
	return slices.Clone(b.Methods)
}

// BaseRoute returns the route a handler is invoked with: the first segment of
// the pattern for pattern bindings, and the pattern itself otherwise.
func (b Binding) BaseRoute() string {
	if !b.IsPattern {
		return b.Pattern
	}
	base, _, _ := strings.Cut(strings.TrimLeft(b.Pattern, "/"), "/")
	return "/" + base
}

func (b Binding) String() string {
	kind := "route"
	if b.IsPattern {
		kind = "pattern route"
	}
	return fmt.Sprintf("%s %s -> %s", kind, b.Pattern, b.Handler)
}

// Table is an ordered registry of route bindings. Pattern bindings are always
// evaluated before literal bindings. It is safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	patterns []Binding
	literals []Binding
}

// NewTable returns a new Table with the given bindings registered in order.
func NewTable(bindings ...Binding) (*Table, error) {
	t := &Table{}
	for _, b := range bindings {
		if err := t.Register(b); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Register adds a binding to the table. It returns an error if the pattern
// doesn't compile, or if required fields are missing.
func (t *Table) Register(b Binding) error {
	if b.Pattern == "" {
		return errors.New("route pattern must not be empty")
	}
	if b.Handler == "" {
		return fmt.Errorf("route '%s' has no handler", b.Pattern)
	}

	rx, err := regexp.Compile(`^(?:` + b.Pattern + `)($|/|\?)`)
	if err != nil {
		return fmt.Errorf("invalid route pattern '%s': %w", b.Pattern, err)
	}
	b.rx = rx

	methods := make([]string, 0, len(b.Methods))
	for _, m := range b.Methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" && !slices.Contains(methods, m) {
			methods = append(methods, m)
		}
	}
	b.Methods = methods

	t.mu.Lock()
	defer t.mu.Unlock()

	group := &t.literals
	if b.IsPattern {
		group = &t.patterns
	}
	*group = append(*group, b)
	slices.SortStableFunc(*group, func(a, b Binding) int {
		return cmp.Compare(b.Priority, a.Priority)
	})

	return nil
}

// Bindings returns all bindings in evaluation order.
func (t *Table) Bindings() []Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return slices.Concat(t.patterns, t.literals)
}

// Len returns the number of registered bindings.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.patterns) + len(t.literals)
}
