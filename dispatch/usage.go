package dispatch

import (
	"net/url"
	"slices"
	"strings"

	"go.hackfix.me/switchboard/route"
)

// DefaultDocContentType is the documented request content type of routes that
// don't declare one.
const DefaultDocContentType = "application/x-www-form-urlencoded"

// RouteIndex is the usage document listing all literal routes.
type RouteIndex struct {
	Routes []RouteLink `json:"routes"`
}

// RouteLink is an entry of the route index.
type RouteLink struct {
	Route      string `json:"route"`
	Href       string `json:"href"`
	Deprecated bool   `json:"deprecated,omitempty"`
}

// RouteDoc is the usage document of a single route.
type RouteDoc struct {
	Route       string   `json:"route"`
	Methods     []string `json:"methods"`
	ContentType string   `json:"content_type"`
	Restricted  bool     `json:"restricted,omitempty"`
	Deprecated  bool     `json:"deprecated,omitempty"`
	Operations  []Doc    `json:"operations"`
}

// Usage returns the usage document served at the root path. If op names a
// literal route, its documentation is returned, extended with the
// documentation of pattern routes sharing its base segment. Otherwise, the
// index of all literal routes sorted by route is returned.
func (d *Dispatcher) Usage(op string) any {
	bindings := d.resolver.Table().Bindings()

	var literals []int
	for i, b := range bindings {
		if !b.IsPattern {
			literals = append(literals, i)
		}
	}
	slices.SortStableFunc(literals, func(a, b int) int {
		return strings.Compare(bindings[a].Pattern, bindings[b].Pattern)
	})

	if op != "" {
		for _, i := range literals {
			if b := bindings[i]; b.Pattern == op {
				return d.routeDoc(b.Pattern, bindings[i], bindings)
			}
		}
	}

	idx := RouteIndex{Routes: make([]RouteLink, 0, len(literals))}
	for _, i := range literals {
		b := bindings[i]
		idx.Routes = append(idx.Routes, RouteLink{
			Route:      b.Pattern,
			Href:       "?" + url.Values{"op": {b.Pattern}}.Encode(),
			Deprecated: b.Deprecated,
		})
	}

	return idx
}

func (d *Dispatcher) routeDoc(op string, b route.Binding, all []route.Binding) RouteDoc {
	doc := RouteDoc{
		Route:       op,
		Methods:     b.AllowedMethods(),
		ContentType: b.ContentType,
		Restricted:  b.Restricted,
		Deprecated:  b.Deprecated,
		Operations:  []Doc{},
	}
	if doc.ContentType == "" {
		doc.ContentType = DefaultDocContentType
	}

	if h, ok := d.registry.Get(b.Handler); ok {
		doc.Operations = append(doc.Operations, h.Documentation(op)...)
	}

	for _, pb := range all {
		if !pb.IsPattern || pb.BaseRoute() != op {
			continue
		}
		if h, ok := d.registry.Get(pb.Handler); ok {
			doc.Operations = append(doc.Operations, h.Documentation(pb.Pattern)...)
		}
	}

	return doc
}
