package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/httpmocker/httpmocker/pkg/handler"
	"github.com/httpmocker/httpmocker/pkg/handlerdata"
	"github.com/httpmocker/httpmocker/pkg/httputil"
)

// Control endpoint paths.
const (
	HandlerPath     = "/mock/app/handler"
	HandlerDataPath = "/mock/app/handler/data"
	HealthPath      = "/mock/app/health"
	OpenAPIPath     = "/mock/app/openapi.json"
)

// Control request headers.
const (
	HeaderHandlerName     = "m-handler-name"
	HeaderRoutesName      = "m-routes-name"
	HeaderHandlerFormat   = "m-handler-format"
	HeaderHandlerURL      = "m-handler-url"
	HeaderHandlerDataPath = "m-handler-data-path"
)

// RegisterResponse is returned by POST /mock/app/handler/.
type RegisterResponse struct {
	Msg        string   `json:"msg"`
	Overridden []string `json:"overridden,omitempty"`
}

// UnregisterResponse is returned by DELETE /mock/app/handler/.
type UnregisterResponse struct {
	Msg        string   `json:"msg"`
	NotDeleted []string `json:"notDeleted,omitempty"`
}

// InvalidHandlerResponse carries the loader error alongside the message.
type InvalidHandlerResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// RouteInfo describes one registered route.
type RouteInfo struct {
	Method  string `json:"method"`
	Pattern string `json:"pattern"`
	Handler string `json:"handler"`
}

// HandlersResponse is returned by GET /mock/app/handler/.
type HandlersResponse struct {
	ID       string              `json:"id"`
	Kind     string              `json:"kind"`
	Handlers map[string][]string `json:"handlers"`
	Routes   []RouteInfo         `json:"routes"`
	Data     []string            `json:"data"`
}

// HealthResponse is returned by GET /mock/app/health.
type HealthResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Routes int    `json:"routes"`
}

func (a *App) controlMux() *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(method, path string, h http.HandlerFunc) {
		mux.HandleFunc(method+" "+path, h)
		mux.HandleFunc(method+" "+path+"/{$}", h)
	}

	handle(http.MethodPost, HandlerPath, a.handleRegister)
	handle(http.MethodDelete, HandlerPath, a.handleUnregister)
	handle(http.MethodGet, HandlerPath, a.handleListHandlers)

	handle(http.MethodGet, HandlerDataPath, a.handleGetData)
	handle(http.MethodPost, HandlerDataPath, a.handleSetData)
	handle(http.MethodDelete, HandlerDataPath, a.handleDeleteData)

	handle(http.MethodGet, HealthPath, a.handleHealth)
	mux.HandleFunc("GET "+OpenAPIPath, a.handleOpenAPI)
	return mux
}

// handlerSpec reads the handler headers and body. It writes the error
// response and returns false on failure.
func handlerSpec(w http.ResponseWriter, r *http.Request) (handler.Spec, bool) {
	if !httputil.RequireHeaders(w, r, HeaderHandlerName) {
		return handler.Spec{}, false
	}
	format, err := handler.ParseFormat(r.Header.Get(HeaderHandlerFormat))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return handler.Spec{}, false
	}
	body, err := httputil.ReadBody(w, r)
	if err != nil {
		httputil.WriteBadRequest(w, "Failed to read request body.")
		return handler.Spec{}, false
	}
	if len(body) == 0 {
		httputil.WriteBadRequest(w, "Invalid handler data.")
		return handler.Spec{}, false
	}
	return handler.Spec{
		Name:   r.Header.Get(HeaderHandlerName),
		Source: body,
		Format: format,
		Symbol: r.Header.Get(HeaderRoutesName),
	}, true
}

// writeHandlerError maps load and swap failures to responses.
func writeHandlerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, handler.ErrInvalidName):
		httputil.WriteBadRequest(w, "Invalid handler name.")
	case errors.Is(err, handler.ErrInvalidHandler):
		httputil.WriteJSON(w, http.StatusBadRequest, InvalidHandlerResponse{
			Error:  "Invalid handler data.",
			Detail: err.Error(),
		})
	case errors.Is(err, ErrRouteConflict):
		httputil.WriteError(w, http.StatusConflict, err.Error())
	default:
		httputil.WriteInternalError(w, "Failed to update routes.")
	}
}

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	spec, ok := handlerSpec(w, r)
	if !ok {
		return
	}

	overridden, err := a.Register(r.Context(), spec)
	if err != nil {
		a.log.Warn("handler registration failed", "handler", spec.Name, "error", err)
		writeHandlerError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RegisterResponse{Msg: "Handler registered.", Overridden: overridden})
}

func (a *App) handleUnregister(w http.ResponseWriter, r *http.Request) {
	spec, ok := handlerSpec(w, r)
	if !ok {
		return
	}

	missing, err := a.Unregister(r.Context(), spec)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "Handler routes not found.")
		return
	}
	if err != nil {
		a.log.Warn("handler unregistration failed", "handler", spec.Name, "error", err)
		writeHandlerError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, UnregisterResponse{Msg: "Handler unregistered.", NotDeleted: missing})
}

func (a *App) handleListHandlers(w http.ResponseWriter, _ *http.Request) {
	st := a.current()
	resp := HandlersResponse{
		ID:       a.spec.ID,
		Kind:     a.spec.Kind,
		Handlers: st.table.Handlers(),
		Routes:   make([]RouteInfo, 0, st.table.Len()),
		Data:     a.data.Paths(),
	}
	for _, e := range st.table.entries {
		resp.Routes = append(resp.Routes, RouteInfo{Method: e.route.Method, Pattern: e.route.Pattern, Handler: e.owner})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (a *App) handleGetData(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireHeaders(w, r, HeaderHandlerURL) {
		return
	}
	url := r.Header.Get(HeaderHandlerURL)

	value, ok := a.data.Get(url)
	if !ok {
		httputil.WriteNotFound(w, "Handler data not found for a given url.")
		return
	}

	if path := r.Header.Get(HeaderHandlerDataPath); path != "" {
		selected, err := handlerdata.Select(value, path)
		if errors.Is(err, handlerdata.ErrNotFound) {
			httputil.WriteNotFound(w, "Handler data not found for a given path.")
			return
		}
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		value = selected
	}
	httputil.WriteJSON(w, http.StatusOK, value)
}

func (a *App) handleSetData(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireHeaders(w, r, HeaderHandlerURL) {
		return
	}
	url := r.Header.Get(HeaderHandlerURL)

	body, err := httputil.ReadBody(w, r)
	if err != nil {
		httputil.WriteBadRequest(w, "Failed to read request body.")
		return
	}
	if !json.Valid(body) {
		httputil.WriteBadRequest(w, "Invalid JSON data.")
		return
	}
	if !a.current().table.Has(url) {
		httputil.WriteNotFound(w, "Route not found.")
		return
	}
	if err := a.data.SetRaw(url, body); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	a.log.Debug("handler data registered", "url", url, "bytes", len(body))
	httputil.WriteMessage(w, http.StatusOK, "Data registered for '"+url+"' route.")
}

func (a *App) handleDeleteData(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireHeaders(w, r, HeaderHandlerURL) {
		return
	}
	if !a.data.Delete(r.Header.Get(HeaderHandlerURL)) {
		httputil.WriteNotFound(w, "Handler data not found for a given url.")
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Handler data deleted.")
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		ID:     a.spec.ID,
		Kind:   a.spec.Kind,
		Routes: a.current().table.Len(),
	})
}

func (a *App) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	doc := a.OpenAPI()
	raw, err := json.Marshal(doc)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to encode OpenAPI document.")
		return
	}
	httputil.WriteRawJSON(w, http.StatusOK, raw)
}
