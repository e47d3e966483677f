package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

const (
	headerHandlerName     = "m-handler-name"
	headerRoutesName      = "m-routes-name"
	headerHandlerFormat   = "m-handler-format"
	headerHandlerURL      = "m-handler-url"
	headerHandlerDataPath = "m-handler-data-path"

	handlerPath     = "/mock/app/handler/"
	handlerDataPath = "/mock/app/handler/data/"
)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithFormat sets the handler source format, "go" or "yaml".
func WithFormat(format string) HandlerOption {
	return func(h *Handler) { h.format = format }
}

// WithRoutesName sets the symbol holding the route table in Go sources.
func WithRoutesName(symbol string) HandlerOption {
	return func(h *Handler) { h.symbol = symbol }
}

// Registered marks the handler as already set on the app, with source as
// the module Remove will unregister.
func Registered(source []byte) HandlerOption {
	return func(h *Handler) {
		h.source = source
		h.set = true
	}
}

// Handler is a handler module on a running app.
type Handler struct {
	app     *App
	name    string
	baseURL string
	format  string
	symbol  string

	mu     sync.Mutex
	source []byte
	set    bool
}

// Name returns the handler name.
func (h *Handler) Name() string { return h.name }

func (h *Handler) headers() map[string]string {
	headers := map[string]string{headerHandlerName: h.name}
	if h.format != "" {
		headers[headerHandlerFormat] = h.format
	}
	if h.symbol != "" {
		headers[headerRoutesName] = h.symbol
	}
	return headers
}

func (h *Handler) requireSet() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.set {
		return fmt.Errorf("%w: handler is not set", ErrAccessDenied)
	}
	return nil
}

// Set uploads source and registers its routes on the app.
func (h *Handler) Set(ctx context.Context, source []byte) (*RegisterResponse, error) {
	resp, err := h.app.client.send(ctx, http.MethodPost, h.baseURL+handlerPath, h.headers(), source)
	if err != nil {
		return nil, fmt.Errorf("set handler %s: %w", h.name, err)
	}
	var out RegisterResponse
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.source = append([]byte(nil), source...)
	h.set = true
	h.mu.Unlock()
	return &out, nil
}

// Remove unregisters the routes of the source last passed to Set.
func (h *Handler) Remove(ctx context.Context) (*UnregisterResponse, error) {
	if err := h.requireSet(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	source := h.source
	h.mu.Unlock()

	resp, err := h.app.client.send(ctx, http.MethodDelete, h.baseURL+handlerPath, h.headers(), source)
	if err != nil {
		return nil, fmt.Errorf("remove handler %s: %w", h.name, err)
	}
	var out UnregisterResponse
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.set = false
	h.mu.Unlock()
	return &out, nil
}

// SetData stores data for the route at url. data is encoded as JSON unless it
// is already a []byte.
func (h *Handler) SetData(ctx context.Context, url string, data any) (*MessageResponse, error) {
	if err := h.requireSet(); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("nil handler data")
	}
	resp, err := h.app.client.send(ctx, http.MethodPost, h.baseURL+handlerDataPath, map[string]string{headerHandlerURL: url}, data)
	if err != nil {
		return nil, err
	}
	var out MessageResponse
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Data decodes the data stored for url into v. A non-empty jsonPath selects
// part of it on the server.
func (h *Handler) Data(ctx context.Context, url, jsonPath string, v any) error {
	if err := h.requireSet(); err != nil {
		return err
	}
	headers := map[string]string{headerHandlerURL: url}
	if jsonPath != "" {
		headers[headerHandlerDataPath] = jsonPath
	}
	resp, err := h.app.client.send(ctx, http.MethodGet, h.baseURL+handlerDataPath, headers, nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, v)
}

// RemoveData deletes the data stored for url.
func (h *Handler) RemoveData(ctx context.Context, url string) (*MessageResponse, error) {
	if err := h.requireSet(); err != nil {
		return nil, err
	}
	resp, err := h.app.client.send(ctx, http.MethodDelete, h.baseURL+handlerDataPath, map[string]string{headerHandlerURL: url}, nil)
	if err != nil {
		return nil, err
	}
	var out MessageResponse
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
