package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// Header names shared with the controller and the apps.
const (
	headerAppName      = "m-app-name"
	headerAppPort      = "m-app-port"
	headerAppHost      = "m-app-host"
	headerAppEnableSSL = "m-app-enable-ssl"
	headerAppID        = "m-app-id"
)

// AppOption configures an App.
type AppOption func(*App)

// AppHost sets the address the app binds to.
func AppHost(host string) AppOption {
	return func(a *App) { a.host = host }
}

// AppSSL makes the app serve HTTPS.
func AppSSL() AppOption {
	return func(a *App) { a.ssl = true }
}

// App is a mock app managed through the controller.
type App struct {
	client *Client
	kind   string
	port   int
	host   string
	ssl    bool

	mu      sync.Mutex
	id      string
	started bool
}

// Kind returns the app kind.
func (a *App) Kind() string { return a.kind }

// Port returns the app port.
func (a *App) Port() int { return a.port }

// ID returns the id assigned by the controller, or "" before Start.
func (a *App) ID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

// Started reports whether Start succeeded and Stop has not been called since.
func (a *App) Started() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// Attach binds the handle to an app that is already running under id.
func (a *App) Attach(id string) {
	a.mu.Lock()
	a.id = id
	a.started = id != ""
	a.mu.Unlock()
}

func (a *App) startedID() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return "", fmt.Errorf("%w: app has not started", ErrAccessDenied)
	}
	return a.id, nil
}

// Start asks the controller to spawn the app. config is sent as the JSON
// body and may be nil.
func (a *App) Start(ctx context.Context, config map[string]any) (*StartResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil, fmt.Errorf("%w: app has already started", ErrAccessDenied)
	}

	headers := map[string]string{
		headerAppName: a.kind,
		headerAppPort: strconv.Itoa(a.port),
	}
	if a.host != "" {
		headers[headerAppHost] = a.host
	}
	if a.ssl {
		headers[headerAppEnableSSL] = "true"
	}
	if config == nil {
		config = map[string]any{}
	}

	resp, err := a.client.send(ctx, http.MethodPost, a.client.url("/mock/app/"), headers, config)
	if err != nil {
		return nil, fmt.Errorf("start %s app: %w", a.kind, err)
	}
	id := resp.Header.Get(headerAppID)
	var out StartResponse
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = id
	}

	a.id = out.ID
	a.started = true
	return &out, nil
}

// Status returns the controller's view of the app.
func (a *App) Status(ctx context.Context) (*AppStatus, error) {
	id, err := a.startedID()
	if err != nil {
		return nil, err
	}
	resp, err := a.client.send(ctx, http.MethodGet, a.client.url("/mock/app/"), map[string]string{headerAppID: id}, nil)
	if err != nil {
		return nil, err
	}
	var out AppStatus
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Running reports whether the controller still sees the app running.
func (a *App) Running(ctx context.Context) (bool, error) {
	st, err := a.Status(ctx)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return st.Status == "running", nil
}

// Stop asks the controller to stop the app.
func (a *App) Stop(ctx context.Context) (*MessageResponse, error) {
	id, err := a.startedID()
	if err != nil {
		return nil, err
	}
	resp, err := a.client.send(ctx, http.MethodDelete, a.client.url("/mock/app/"), map[string]string{headerAppID: id}, nil)
	if err != nil {
		return nil, err
	}
	var out MessageResponse
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.started = false
	a.mu.Unlock()
	return &out, nil
}

// URL returns the app's base URL as reachable from this client. Wildcard
// bind addresses are replaced with the controller's host.
func (a *App) URL() string {
	host := a.host
	switch host {
	case "", "0.0.0.0", "::":
		host = a.client.baseURL.Hostname()
	}
	scheme := "http"
	if a.ssl {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(host, strconv.Itoa(a.port))}
	return u.String()
}

// Handler returns a handle for the named handler on this app.
func (a *App) Handler(name string, opts ...HandlerOption) (*Handler, error) {
	if _, err := a.startedID(); err != nil {
		return nil, err
	}
	h := &Handler{app: a, name: name, baseURL: a.URL()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}
