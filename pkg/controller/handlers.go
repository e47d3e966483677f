package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/httpmocker/httpmocker/pkg/app"
	"github.com/httpmocker/httpmocker/pkg/config"
	"github.com/httpmocker/httpmocker/pkg/httputil"
	"github.com/httpmocker/httpmocker/pkg/supervisor"
	certs "github.com/httpmocker/httpmocker/pkg/tls"
)

func (s *Server) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.Header.Get(HeaderAppName))
	port, err := strconv.Atoi(strings.TrimSpace(r.Header.Get(HeaderAppPort)))
	if name == "" || err != nil || port < 0 || port > 65535 {
		httputil.WriteBadRequest(w, "m-app-name and m-app-port not found.")
		return
	}

	enableSSL := false
	if raw := strings.TrimSpace(r.Header.Get(HeaderAppEnableSSL)); raw != "" {
		enableSSL, err = config.ParseBool(raw)
		if err != nil {
			httputil.WriteBadRequest(w, "m-app-enable-ssl must be a boolean.")
			return
		}
	}

	kind, err := app.Lookup(name)
	if err != nil {
		httputil.WriteNotFound(w, fmt.Sprintf("App %s is not supported", name))
		return
	}

	var cfg map[string]any
	if err := httputil.DecodeJSON(w, r, &cfg); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		httputil.WriteBadRequest(w, "Invalid app config.")
		return
	}

	p, err := s.sup.Start(r.Context(), supervisor.StartRequest{
		Kind:      kind.Name(),
		Host:      strings.TrimSpace(r.Header.Get(HeaderAppHost)),
		Port:      port,
		EnableSSL: enableSSL,
		Config:    cfg,
		CertPEM:   s.opts.AppCertPEM,
		KeyPEM:    s.opts.AppKeyPEM,
	})
	s.metrics.ObserveStart(kind.Name(), err)
	if err != nil {
		s.log.Error("failed to start app", "kind", kind.Name(), "port", port, "error", err)
		if errors.Is(err, app.ErrUnsupportedKind) {
			httputil.WriteNotFound(w, fmt.Sprintf("App %s is not supported", name))
			return
		}
		httputil.WriteInternalError(w, err.Error())
		return
	}

	if peer := certs.PeerIdentity(r.TLS); peer != nil {
		s.log.Info("app created by client certificate", "app_id", p.ID(), "client", peer.CommonName)
	}
	w.Header().Set(HeaderAppID, p.ID())
	httputil.WriteJSON(w, http.StatusOK, CreateAppResponse{
		Msg: fmt.Sprintf("%s app created.", p.Spec.Kind),
		ID:  p.ID(),
	})
}

// lookupApp resolves the m-app-id header, writing the 400/404 response when it
// cannot.
func (s *Server) lookupApp(w http.ResponseWriter, r *http.Request) (*supervisor.Process, bool) {
	id := strings.TrimSpace(r.Header.Get(HeaderAppID))
	if id == "" {
		httputil.WriteBadRequest(w, "m-app-id not found.")
		return nil, false
	}
	p, err := s.sup.Get(id)
	if err != nil {
		httputil.WriteNotFound(w, "App not found.")
		return nil, false
	}
	return p, true
}

func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupApp(w, r)
	if !ok {
		return
	}
	if !p.Alive() {
		httputil.WriteNotFound(w, fmt.Sprintf("%s app not running.", p.Spec.Kind))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, AppStatusResponse{
		Status: string(supervisor.StatusRunning),
		Host:   p.Spec.Host,
		Port:   p.Spec.Port,
		ID:     p.ID(),
		Kind:   p.Spec.Kind,
		SSL:    p.Spec.TLSEnabled(),
	})
}

func (s *Server) handleDeleteApp(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupApp(w, r)
	if !ok {
		return
	}

	err := s.sup.Stop(r.Context(), p.ID())
	s.metrics.ObserveStop(p.Spec.Kind, err)
	switch {
	case errors.Is(err, supervisor.ErrNotFound):
		httputil.WriteNotFound(w, "App not found.")
		return
	case err != nil:
		s.log.Error("failed to stop app", "app_id", p.ID(), "error", err)
		httputil.WriteInternalError(w, fmt.Sprintf("Could not stop the app %s.", p.Spec.Kind))
		return
	}

	httputil.WriteMessage(w, http.StatusOK, fmt.Sprintf("App %s stopped.", p.Spec.Kind))
}

func (s *Server) handleListApps(w http.ResponseWriter, _ *http.Request) {
	apps := s.sup.List()
	httputil.WriteJSON(w, http.StatusOK, AppsResponse{Apps: apps, Count: len(apps)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Running: s.sup.Running()})
}
