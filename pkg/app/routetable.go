package app

import (
	"errors"
	"sort"
	"strings"

	"github.com/httpmocker/httpmocker/pkg/handler"
)

// ErrNotFound is returned when none of a handler's routes are registered.
var ErrNotFound = errors.New("not found")

type tableEntry struct {
	route handler.Route
	owner string
}

// RouteTable is the ordered set of routes an app serves, keyed by
// Route.Key and grouped by owning handler. It is not safe for concurrent
// mutation; App serializes changes and swaps whole tables.
type RouteTable struct {
	entries []tableEntry
}

// NewRouteTable creates an empty table.
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// Clone returns a copy that can be modified independently.
func (t *RouteTable) Clone() *RouteTable {
	c := &RouteTable{entries: make([]tableEntry, len(t.entries))}
	copy(c.entries, t.entries)
	return c
}

func (t *RouteTable) index(key string) int {
	for i, e := range t.entries {
		if e.route.Key() == key {
			return i
		}
	}
	return -1
}

// Register adds mod's routes. Routes previously owned by a handler with the
// same name are dropped first. A route whose key is already present replaces
// the existing one in place. The replaced keys are returned.
func (t *RouteTable) Register(mod *handler.Module) []string {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.owner != mod.Name {
			kept = append(kept, e)
		}
	}
	t.entries = kept

	var overridden []string
	for _, r := range mod.Routes {
		e := tableEntry{route: r, owner: mod.Name}
		if i := t.index(r.Key()); i >= 0 {
			t.entries[i] = e
			overridden = append(overridden, r.Key())
			continue
		}
		t.entries = append(t.entries, e)
	}
	return overridden
}

// Unregister removes mod's routes by key and returns the keys that were not
// present. ErrNotFound is returned when nothing was removed.
func (t *RouteTable) Unregister(mod *handler.Module) ([]string, error) {
	var missing []string
	removed := 0
	for _, r := range mod.Routes {
		i := t.index(r.Key())
		if i < 0 {
			missing = append(missing, r.Key())
			continue
		}
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
		removed++
	}
	if removed == 0 {
		return missing, ErrNotFound
	}
	return missing, nil
}

// Routes returns the routes in registration order.
func (t *RouteTable) Routes() []handler.Route {
	routes := make([]handler.Route, len(t.entries))
	for i, e := range t.entries {
		routes[i] = e.route
	}
	return routes
}

// Len returns the number of routes.
func (t *RouteTable) Len() int {
	return len(t.entries)
}

// Handlers maps each owning handler name to its route keys.
func (t *RouteTable) Handlers() map[string][]string {
	out := make(map[string][]string)
	for _, e := range t.entries {
		out[e.owner] = append(out[e.owner], e.route.Key())
	}
	for _, keys := range out {
		sort.Strings(keys)
	}
	return out
}

// Has reports whether any route serves path.
func (t *RouteTable) Has(path string) bool {
	_, ok := t.Match(path)
	return ok
}

// Match returns the pattern of the route serving path. A pattern equal to
// path wins over wildcard matches.
func (t *RouteTable) Match(path string) (string, bool) {
	for _, e := range t.entries {
		if e.route.Pattern == path {
			return path, true
		}
	}
	for _, e := range t.entries {
		if matchPattern(e.route.Pattern, path) {
			return e.route.Pattern, true
		}
	}
	return "", false
}

// matchPattern matches path against a pattern where {name} spans one segment
// and {name...} spans the remainder.
func matchPattern(pattern, path string) bool {
	ps := strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	xs := strings.Split(strings.TrimPrefix(path, "/"), "/")

	for i, seg := range ps {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "...}") {
			return true
		}
		if i >= len(xs) {
			return false
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if xs[i] == "" {
				return false
			}
			continue
		}
		if seg != xs[i] {
			return false
		}
	}
	return len(ps) == len(xs)
}
