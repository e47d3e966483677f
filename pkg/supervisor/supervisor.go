package supervisor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/httpmocker/httpmocker/pkg/app"
	"github.com/httpmocker/httpmocker/pkg/logging"
	certs "github.com/httpmocker/httpmocker/pkg/tls"
)

var (
	// ErrNotFound is returned for unknown app ids.
	ErrNotFound = errors.New("app not found")
	// ErrStartFailed is returned when an app does not become healthy.
	ErrStartFailed = errors.New("app failed to start")
	// ErrStopFailed is returned when an app survives SIGKILL.
	ErrStopFailed = errors.New("app failed to stop")
)

// DefaultHost is used when a start request names no host.
const DefaultHost = "0.0.0.0"

const killGrace = 2 * time.Second

// Options configures a Supervisor.
type Options struct {
	StartTimeout       time.Duration
	StopTimeout        time.Duration
	CertStorageRoot    string
	HandlerStorageRoot string
	Logger             *slog.Logger
}

// StartRequest describes an app to start.
type StartRequest struct {
	Kind      string
	Host      string
	Port      int
	EnableSSL bool
	Config    map[string]any
	// CertPEM and KeyPEM are optional; a self-signed pair is generated when
	// SSL is enabled without them.
	CertPEM []byte
	KeyPEM  []byte
}

// Supervisor owns the running app processes.
type Supervisor struct {
	opts    Options
	spawner Spawner
	certs   *certs.Store
	health  *http.Client
	log     *slog.Logger

	mu    sync.RWMutex
	procs map[string]*Process
}

// New creates a Supervisor that starts apps with spawner.
func New(spawner Spawner, opts Options) *Supervisor {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 5 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	return &Supervisor{
		opts:    opts,
		spawner: spawner,
		certs:   certs.NewStore(opts.CertStorageRoot),
		health: &http.Client{
			Timeout: time.Second,
			Transport: &http.Transport{
				//nolint:gosec // G402: apps serve self-signed certificates
				TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
				DisableKeepAlives: true,
			},
		},
		log:   log.With("component", "supervisor"),
		procs: make(map[string]*Process),
	}
}

// Start spawns an app and waits until it answers its health endpoint.
func (s *Supervisor) Start(ctx context.Context, req StartRequest) (*Process, error) {
	kind, err := app.Lookup(req.Kind)
	if err != nil {
		return nil, err
	}
	if req.Port < 0 || req.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid port %d", ErrStartFailed, req.Port)
	}

	spec := app.Spec{
		ID:                 kind.Name() + "-" + uuid.NewString(),
		Kind:               kind.Name(),
		Host:               req.Host,
		Port:               req.Port,
		Config:             req.Config,
		HandlerStorageRoot: s.opts.HandlerStorageRoot,
	}
	if spec.Host == "" {
		spec.Host = DefaultHost
	}
	log := s.log.With("app_id", spec.ID)

	if req.EnableSSL {
		var supplied *certs.Certificate
		if len(req.CertPEM) > 0 {
			supplied = &certs.Certificate{CertPEM: req.CertPEM, KeyPEM: req.KeyPEM}
		}
		spec.CertFile, spec.KeyFile, err = s.certs.Save(spec.ID, supplied)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
		}
	}

	child, err := s.spawner.Spawn(ctx, spec)
	if err != nil {
		_ = s.certs.Remove(spec.ID)
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	p := NewProcess(spec, child)
	go s.reap(p, log)

	if err := s.waitHealthy(ctx, p); err != nil {
		log.Warn("app did not become healthy", "error", err)
		s.halt(context.Background(), p)
		_ = s.certs.Remove(spec.ID)
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	s.mu.Lock()
	s.procs[spec.ID] = p
	s.mu.Unlock()

	log.Info("app started", "kind", spec.Kind, "host", spec.Host, "port", spec.Port, "ssl", spec.TLSEnabled(), "pid", child.Pid())
	return p, nil
}

// reap records the exit of a child.
func (s *Supervisor) reap(p *Process, log *slog.Logger) {
	<-p.child.Done()
	p.markExited()
	if err := p.ExitErr(); err != nil {
		log.Info("app exited", "error", err)
		return
	}
	log.Info("app exited")
}

func (s *Supervisor) waitHealthy(ctx context.Context, p *Process) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = s.opts.StartTimeout

	op := func() error {
		select {
		case <-p.Done():
			return backoff.Permanent(fmt.Errorf("process exited: %v", p.ExitErr()))
		default:
		}
		return s.checkHealth(ctx, p.Spec)
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// checkHealth performs one health request against the app. Only an answer carrying
// spec's id counts; another app already bound to the port does not.
func (s *Supervisor) checkHealth(ctx context.Context, spec app.Spec) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, HealthURL(spec), nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := s.health.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	var health app.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if health.ID != spec.ID {
		return fmt.Errorf("port %d is answered by app %q", spec.Port, health.ID)
	}
	return nil
}

// HealthURL returns the health endpoint of an app, dialing loopback for
// wildcard hosts.
func HealthURL(spec app.Spec) string {
	host := spec.Host
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	scheme := "http"
	if spec.TLSEnabled() {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(spec.Port)) + app.HealthPath
}

// Get returns the process for id.
func (s *Supervisor) Get(id string) (*Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.procs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// IsAlive reports whether the app with id is running.
func (s *Supervisor) IsAlive(id string) bool {
	p, err := s.Get(id)
	return err == nil && p.Alive()
}

// List returns all known apps, oldest first.
func (s *Supervisor) List() []Info {
	s.mu.RLock()
	infos := make([]Info, 0, len(s.procs))
	for _, p := range s.procs {
		infos = append(infos, p.Info())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Running returns the number of live apps.
func (s *Supervisor) Running() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.procs {
		if p.Alive() {
			n++
		}
	}
	return n
}

// Stop terminates the app with id and forgets it. The app gets StopTimeout
// to exit after SIGTERM before it is killed.
func (s *Supervisor) Stop(ctx context.Context, id string) error {
	s.mu.Lock()
	p, ok := s.procs[id]
	if ok {
		delete(s.procs, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	err := s.halt(ctx, p)
	if rmErr := s.certs.Remove(id); rmErr != nil {
		s.log.Warn("failed to remove certificates", "app_id", id, "error", rmErr)
	}
	if err != nil {
		return err
	}
	s.log.Info("app stopped", "app_id", id)
	return nil
}

// halt stops a child: SIGTERM, then SIGKILL after StopTimeout or when ctx
// ends.
func (s *Supervisor) halt(ctx context.Context, p *Process) error {
	if !p.Alive() {
		return nil
	}

	if err := p.child.Terminate(); err != nil {
		s.log.Warn("terminate failed", "app_id", p.ID(), "error", err)
	}

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-p.Done():
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	s.log.Warn("app did not exit in time, killing", "app_id", p.ID())
	if err := p.child.Kill(); err != nil {
		return fmt.Errorf("%w: %w", ErrStopFailed, err)
	}
	select {
	case <-p.Done():
		return nil
	case <-time.After(killGrace):
		return fmt.Errorf("%w: %s still running", ErrStopFailed, p.ID())
	}
}

// StopAll stops every app.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Stop(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
