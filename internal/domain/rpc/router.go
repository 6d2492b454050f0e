package rpc

import (
	"fmt"
	"sort"

	"github.com/voltigdev/voltig-turbo/internal/domain/validation"
)

// Router maps dotted procedure paths to procedures.
// Registration happens at startup; lookups are read-only afterwards.
type Router struct {
	procedures map[string]*Procedure
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{procedures: make(map[string]*Procedure)}
}

// Add registers p under path. It panics on an invalid or duplicate path,
// which is a programming error caught at startup.
func (r *Router) Add(path string, p *Procedure) *Router {
	if !validation.IsValidProcedurePath(path) {
		panic(fmt.Sprintf("rpc: invalid procedure path %q", path))
	}
	if _, dup := r.procedures[path]; dup {
		panic(fmt.Sprintf("rpc: duplicate procedure %q", path))
	}
	r.procedures[path] = p
	return r
}

// Merge registers every procedure of sub under "prefix.".
func (r *Router) Merge(prefix string, sub *Router) *Router {
	for path, p := range sub.procedures {
		r.Add(prefix+"."+path, p)
	}
	return r
}

// Lookup returns the procedure registered under path.
func (r *Router) Lookup(path string) (*Procedure, bool) {
	p, ok := r.procedures[path]
	return p, ok
}

// Paths returns every registered path in sorted order.
func (r *Router) Paths() []string {
	paths := make([]string, 0, len(r.procedures))
	for path := range r.procedures {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
