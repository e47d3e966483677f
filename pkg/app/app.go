// Package app runs a single mock application.
//
// An App serves user routes through the router of its kind and exposes a
// fixed set of control endpoints under /mock/app/ for managing handlers and
// handler data. Every change to the route table builds a new router that is
// swapped in atomically.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/httpmocker/httpmocker/pkg/handler"
	"github.com/httpmocker/httpmocker/pkg/handlerdata"
	"github.com/httpmocker/httpmocker/pkg/logging"
)

// ControlPrefix is reserved for control endpoints.
const ControlPrefix = "/mock/app/"

// Spec describes an app to run. It is passed from the supervisor to the
// child process as JSON.
type Spec struct {
	ID                 string         `json:"id"`
	Kind               string         `json:"kind"`
	Host               string         `json:"host"`
	Port               int            `json:"port"`
	Config             map[string]any `json:"config,omitempty"`
	CertFile           string         `json:"certFile,omitempty"`
	KeyFile            string         `json:"keyFile,omitempty"`
	HandlerStorageRoot string         `json:"handlerStorageRoot"`
}

// TLSEnabled reports whether the app serves HTTPS.
func (s Spec) TLSEnabled() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// H2C reports whether cleartext HTTP/2 is requested in the app config.
func (s Spec) H2C() bool {
	v, _ := s.Config["h2c"].(bool)
	return v
}

// routerState pairs a route table with the router built from it.
type routerState struct {
	table  *RouteTable
	router http.Handler
}

// App is one mock application instance.
type App struct {
	spec    Spec
	kind    Kind
	loader  *handler.Loader
	data    *handlerdata.Store
	control *http.ServeMux
	log     *slog.Logger

	mu    sync.Mutex // serializes table changes
	state atomic.Pointer[routerState]
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the app logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) {
		if log != nil {
			a.log = log
		}
	}
}

// New creates an App for spec. The kind must be registered.
func New(spec Spec, opts ...Option) (*App, error) {
	kind, err := Lookup(spec.Kind)
	if err != nil {
		return nil, err
	}
	spec.Kind = kind.Name()

	a := &App{
		spec: spec,
		kind: kind,
		log:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("app_id", spec.ID, "kind", spec.Kind)

	root := spec.HandlerStorageRoot
	if root == "" {
		root = "httpmocker/handlers"
	}
	a.loader = handler.NewLoader(handler.NewStorage(filepath.Join(root, kind.Name())), handler.WithLogger(a.log))
	a.data = handlerdata.NewStore(handlerdata.WithMatcher(func(path string) (string, bool) {
		return a.current().table.Match(path)
	}))

	empty, err := kind.Build(nil)
	if err != nil {
		return nil, err
	}
	a.state.Store(&routerState{table: NewRouteTable(), router: empty})
	a.control = a.controlMux()
	return a, nil
}

// Spec returns the app's spec.
func (a *App) Spec() Spec {
	return a.spec
}

// Data returns the handler data store.
func (a *App) Data() *handlerdata.Store {
	return a.data
}

func (a *App) current() *routerState {
	return a.state.Load()
}

// Table returns a snapshot of the route table.
func (a *App) Table() *RouteTable {
	return a.current().table.Clone()
}

// ServeHTTP dispatches control requests to the control endpoints and
// everything else through the handler-data middleware to the current router.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, ControlPrefix) || r.URL.Path == strings.TrimSuffix(ControlPrefix, "/") {
		a.control.ServeHTTP(w, r)
		return
	}
	a.data.Middleware(a.current().router).ServeHTTP(w, r)
}

// Register loads a handler and adds its routes, replacing routes with the
// same keys. It returns the replaced keys.
func (a *App) Register(ctx context.Context, spec handler.Spec) ([]string, error) {
	spec.Temp = false
	mod, err := a.loader.Load(ctx, spec)
	if err != nil {
		return nil, err
	}
	if err := checkReserved(mod); err != nil {
		return nil, err
	}

	var overridden []string
	err = a.swap(func(t *RouteTable) error {
		overridden = t.Register(mod)
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.log.Info("handler registered", "handler", mod.Name, "routes", len(mod.Routes), "overridden", len(overridden))
	return overridden, nil
}

// Unregister loads a handler as a temporary module and removes its routes.
// It returns the keys that were not registered; ErrNotFound means none were.
func (a *App) Unregister(ctx context.Context, spec handler.Spec) ([]string, error) {
	spec.Temp = true
	mod, err := a.loader.Load(ctx, spec)
	if err != nil {
		return nil, err
	}

	var missing []string
	err = a.swap(func(t *RouteTable) error {
		var uerr error
		missing, uerr = t.Unregister(mod)
		return uerr
	})
	if err != nil {
		return missing, err
	}

	a.log.Info("handler unregistered", "handler", mod.Name, "not_deleted", len(missing))
	return missing, nil
}

// swap applies change to a copy of the table, builds a router for it and
// installs both. On any error the current state is kept.
func (a *App) swap(change func(*RouteTable) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.current().table.Clone()
	if err := change(next); err != nil {
		return err
	}
	router, err := a.kind.Build(next.Routes())
	if err != nil {
		return err
	}
	a.state.Store(&routerState{table: next, router: router})
	return nil
}

func checkReserved(mod *handler.Module) error {
	for _, r := range mod.Routes {
		if strings.HasPrefix(r.Pattern+"/", ControlPrefix) {
			return fmt.Errorf("%w: route %s uses the reserved prefix %s", handler.ErrInvalidHandler, r.Key(), ControlPrefix)
		}
	}
	return nil
}
