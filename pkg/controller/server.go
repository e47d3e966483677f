// Package controller implements the management HTTP API that starts, reports
// on and stops mock apps.
package controller

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/httpmocker/httpmocker/pkg/logging"
	"github.com/httpmocker/httpmocker/pkg/metrics"
	"github.com/httpmocker/httpmocker/pkg/supervisor"
	certs "github.com/httpmocker/httpmocker/pkg/tls"
)

const (
	shutdownTimeout = 5 * time.Second
	stopAllTimeout  = 30 * time.Second
)

// Supervisor is what the controller needs from the process supervisor.
type Supervisor interface {
	Start(ctx context.Context, req supervisor.StartRequest) (*supervisor.Process, error)
	Get(id string) (*supervisor.Process, error)
	Stop(ctx context.Context, id string) error
	StopAll(ctx context.Context) error
	List() []supervisor.Info
	Running() int
}

// Options configures a Server.
type Options struct {
	Host string
	Port int

	// SSLPort, CertFile and KeyFile enable an additional HTTPS listener.
	SSLPort  int
	CertFile string
	KeyFile  string
	// ClientCAFile requires HTTPS clients to present a certificate it signed.
	ClientCAFile string

	// AppCertPEM and AppKeyPEM are handed to apps started with SSL enabled.
	// A self-signed pair is generated per app when they are empty.
	AppCertPEM []byte
	AppKeyPEM  []byte

	RequestTimeout time.Duration
	// AuthSecret enables bearer-token auth when set.
	AuthSecret string

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server is the controller HTTP server.
type Server struct {
	sup     Supervisor
	opts    Options
	metrics *metrics.Metrics
	handler http.Handler
	log     *slog.Logger
}

// NewServer creates a controller for sup.
func NewServer(sup Supervisor, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(sup.Running)
	}

	s := &Server{
		sup:     sup,
		opts:    opts,
		metrics: m,
		log:     log.With("component", "controller"),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = mux
	return s
}

// Handler returns the controller's routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	app := func(method string, h http.HandlerFunc) {
		wrapped := s.instrument(AppPath, s.requireAuth(s.withTimeout(h)))
		mux.Handle(method+" "+AppPath, wrapped)
		mux.Handle(method+" "+AppPath+"/{$}", wrapped)
	}
	app(http.MethodPost, s.handleCreateApp)
	app(http.MethodGet, s.handleGetApp)
	app(http.MethodDelete, s.handleDeleteApp)

	mux.Handle("GET "+AppsPath, s.instrument(AppsPath, s.requireAuth(http.HandlerFunc(s.handleListApps))))
	mux.Handle("GET "+HealthPath, s.instrument(HealthPath, http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET "+MetricsPath, s.metrics.Handler())
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return s.metrics.Middleware(route, next)
}

func (s *Server) withTimeout(next http.Handler) http.Handler {
	if s.opts.RequestTimeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Run listens on the configured addresses and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	lns := []net.Listener{ln}

	if s.opts.CertFile != "" && s.opts.KeyFile != "" {
		tlsCfg, err := certs.ServerConfig(s.opts.CertFile, s.opts.KeyFile, s.opts.ClientCAFile)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("controller TLS: %w", err)
		}
		sslAddr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.SSLPort))
		raw, err := net.Listen("tcp", sslAddr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen on %s: %w", sslAddr, err)
		}
		lns = append(lns, tls.NewListener(raw, tlsCfg))
	}

	return s.Serve(ctx, lns...)
}

// Serve serves on every listener until ctx is done. On the way out it stops
// all apps.
func (s *Server) Serve(ctx context.Context, lns ...net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, len(lns))
	for _, ln := range lns {
		s.log.Info("controller listening", "addr", ln.Addr().String())
		go func() {
			err := srv.Serve(ln)
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			errCh <- err
		}()
	}

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	s.log.Info("stopping all apps", "running", s.sup.Running())
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopAllTimeout)
	defer stopCancel()
	stopErr := s.sup.StopAll(stopCtx)

	return errors.Join(serveErr, shutdownErr, stopErr)
}
