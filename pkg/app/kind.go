package app

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/httpmocker/httpmocker/pkg/handler"
)

var (
	// ErrDuplicateKind is the panic value when a kind name is registered twice.
	ErrDuplicateKind = errors.New("app kind registered twice")

	// ErrUnsupportedKind is returned by Lookup for unknown kind names.
	ErrUnsupportedKind = errors.New("app kind not supported")

	// ErrRouteConflict is returned when a router rejects the route table.
	ErrRouteConflict = errors.New("route conflict")
)

// Kind builds routers for one web framework.
type Kind interface {
	// Name is the lowercase identifier used in requests.
	Name() string
	// Build returns a router serving routes. It must not panic.
	Build(routes []handler.Route) (http.Handler, error)
}

var (
	kindsMu sync.RWMutex
	kinds   = make(map[string]Kind)
)

// Register makes a kind available. Registering the same name twice panics
// with ErrDuplicateKind.
func Register(k Kind) {
	name := strings.ToLower(k.Name())

	kindsMu.Lock()
	defer kindsMu.Unlock()
	if _, dup := kinds[name]; dup {
		panic(fmt.Errorf("%w: %s", ErrDuplicateKind, name))
	}
	kinds[name] = k
}

// Lookup finds a kind by case-insensitive name.
func Lookup(name string) (Kind, error) {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	k, ok := kinds[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, name)
	}
	return k, nil
}

// Kinds returns the registered kind names, sorted.
func Kinds() []string {
	kindsMu.RLock()
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	kindsMu.RUnlock()

	sort.Strings(names)
	return names
}

func init() {
	Register(serveMuxKind{})
	Register(gorillaKind{})
	Register(ginKind{})
}

// buildSafely turns a router panic into ErrRouteConflict.
func buildSafely(kind string, build func() http.Handler) (h http.Handler, err error) {
	defer func() {
		if p := recover(); p != nil {
			h = nil
			err = fmt.Errorf("%w: %s: %v", ErrRouteConflict, kind, p)
		}
	}()
	return build(), nil
}
