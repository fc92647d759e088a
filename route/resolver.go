package route

import (
	"net/url"
	"strings"
)

// Resolved is the result of matching a path against the route table.
type Resolved struct {
	Binding Binding
	// BaseRoute is the route the handler is invoked with.
	BaseRoute string
	// Subroute is the remainder of the path after BaseRoute, excluding any
	// query string. It's decoded exactly once, so the path passed to Resolve
	// must still be escaped.
	Subroute string
}

// Resolver matches request paths against a Table.
type Resolver struct {
	table *Table
}

// NewResolver returns a new Resolver for the given table.
func NewResolver(table *Table) *Resolver {
	return &Resolver{table: table}
}

// Table returns the table the resolver matches against.
func (r *Resolver) Table() *Table {
	return r.table
}

// Resolve returns the first binding in evaluation order whose pattern matches
// the beginning of path, followed by a "/", a "?" or the end of the path. The
// empty path and "/" never match.
func (r *Resolver) Resolve(path string) (*Resolved, bool) {
	if path == "" || path == "/" {
		return nil, false
	}

	for _, b := range r.table.Bindings() {
		loc := b.rx.FindStringSubmatchIndex(path)
		if loc == nil {
			continue
		}

		res := &Resolved{Binding: b, BaseRoute: b.BaseRoute()}
		p, _, _ := strings.Cut(path, "?")
		if b.IsPattern {
			res.Subroute = afterFirstSegment(p)
		} else {
			// The first capture group starts where the pattern match ends.
			res.Subroute = strings.TrimLeft(p[min(loc[2], len(p)):], "/")
		}
		res.Subroute = decodeSubroute(res.Subroute)

		return res, true
	}

	return nil, false
}

func afterFirstSegment(path string) string {
	_, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return rest
}

func decodeSubroute(s string) string {
	if dec, err := url.PathUnescape(s); err == nil {
		return dec
	}
	return s
}
