// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package router matches dot-segmented signal types against registered
// path patterns. Patterns combine literal segments, the single-level
// wildcard "*", and the multi-level wildcard "**" (zero or more segments),
// optionally gated by a signal predicate. Matched targets come back in
// specificity order: higher path complexity first, then higher priority,
// then registration order.
package router

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/teradata-labs/jido/pkg/dispatch"
	"github.com/teradata-labs/jido/pkg/instruction"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/signal"
)

// Priority bounds for a route.
const (
	MinPriority = -100
	MaxPriority = 100
)

// Wildcard segments.
const (
	WildcardSingle = "*"
	WildcardMulti  = "**"
)

// Target is the closed sum of things a route can resolve to: an action to
// execute or a dispatch config to forward through.
type Target interface {
	isTarget()
}

// ActionTarget binds a route to an action with default params. Signal data
// overlays the defaults at execution time.
type ActionTarget struct {
	Action instruction.Action
	Params map[string]any
}

// DispatchTarget binds a route to one or more dispatch configs.
type DispatchTarget struct {
	Configs []dispatch.Config
}

func (ActionTarget) isTarget()   {}
func (DispatchTarget) isTarget() {}

// Route is one registered (path, target) binding.
type Route struct {
	// Path is the dot-segmented pattern, possibly containing wildcards.
	Path string

	// Target receives signals whose type matches Path.
	Target Target

	// Priority orders targets of equal complexity, higher first.
	// Must lie in [MinPriority, MaxPriority].
	Priority int

	// Match optionally gates the route on a signal predicate. A panic
	// inside the predicate counts as a non-match.
	Match func(*signal.Signal) bool
}

// Router is a trie over path segments. Safe for concurrent use.
type Router struct {
	mu    sync.RWMutex
	root  *node
	count int
	seq   int
}

// New builds a router from the given routes, returning an error on the
// first invalid route.
func New(routes ...*Route) (*Router, error) {
	r := &Router{root: newNode()}
	if _, err := r.Add(routes...); err != nil {
		return nil, err
	}
	return r, nil
}

// Add validates and inserts routes, returning the number added.
func (r *Router) Add(routes ...*Route) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, route := range routes {
		if err := validateRoute(route); err != nil {
			return added, err
		}
		r.insert(route)
		added++
	}
	return added, nil
}

// Remove deletes every route registered at each given path. Unknown paths
// are ignored.
func (r *Router) Remove(paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, path := range paths {
		r.remove(path)
	}
}

// Count returns the number of trie leaves holding at least one handler or
// matcher.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// List returns every registered route in a stable order: by path, then by
// registration order within a path.
func (r *Router) List() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var routes []*Route
	var walk func(n *node, prefix []string)
	walk = func(n *node, prefix []string) {
		entries := n.entries()
		sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
		for _, e := range entries {
			routes = append(routes, e.route)
		}
		segs := make([]string, 0, len(n.segments))
		for seg := range n.segments {
			segs = append(segs, seg)
		}
		sort.Strings(segs)
		for _, seg := range segs {
			walk(n.segments[seg], append(prefix, seg))
		}
	}
	walk(r.root, nil)

	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Path < routes[j].Path
	})
	return routes
}

// Merge returns a new router containing every route of r and other. Routes
// from r keep ordering precedence over equal routes from other.
func (r *Router) Merge(other *Router) (*Router, error) {
	merged, err := New(r.List()...)
	if err != nil {
		return nil, err
	}
	if other != nil {
		if _, err := merged.Add(other.List()...); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// Route matches sig's type against the trie and returns the targets in
// (complexity desc, priority desc, registration order) order. An empty
// match returns a no_handler routing error.
func (r *Router) Route(sig *signal.Signal) ([]Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	segs := strings.Split(sig.Type, ".")
	var collected []entry
	collectMatches(r.root, segs, sig, &collected)

	// A path with several "**" split points can reach the same leaf more
	// than once; each registered route fires at most once.
	seen := make(map[int]struct{}, len(collected))
	hits := collected[:0]
	for _, h := range collected {
		if _, dup := seen[h.seq]; dup {
			continue
		}
		seen[h.seq] = struct{}{}
		hits = append(hits, h)
	}

	if len(hits) == 0 {
		return nil, jidoerr.NoHandler(sig.Type)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].complexity != hits[j].complexity {
			return hits[i].complexity > hits[j].complexity
		}
		if hits[i].route.Priority != hits[j].route.Priority {
			return hits[i].route.Priority > hits[j].route.Priority
		}
		return hits[i].seq < hits[j].seq
	})

	targets := make([]Target, len(hits))
	for i, h := range hits {
		targets[i] = h.route.Target
	}
	return targets, nil
}

func validateRoute(route *Route) error {
	if route == nil {
		return jidoerr.Validation("invalid_route", "route must not be nil")
	}
	if err := signal.ValidateType(route.Path); err != nil {
		return jidoerr.Routing(jidoerr.CodeInvalidPath,
			fmt.Sprintf("invalid route path %q", route.Path))
	}
	if route.Priority < MinPriority || route.Priority > MaxPriority {
		return jidoerr.Routing(jidoerr.CodeInvalidPriority,
			fmt.Sprintf("priority %d outside [%d, %d]", route.Priority, MinPriority, MaxPriority))
	}
	if route.Target == nil {
		return jidoerr.Validation("invalid_route", "route requires a target")
	}
	if route.Match != nil {
		if err := probeMatch(route.Match); err != nil {
			return err
		}
	}
	return nil
}

// probeMatch invokes a predicate on a canonical probe signal; a predicate
// that panics on a well-formed signal is rejected at registration time.
func probeMatch(match func(*signal.Signal) bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = jidoerr.Routing(jidoerr.CodeInvalidMatchFunction,
				fmt.Sprintf("match function panicked on probe signal: %v", r))
		}
	}()
	probe := signal.MustNew("jido.router.probe", "router",
		signal.WithData(map[string]any{}))
	match(probe)
	return nil
}
