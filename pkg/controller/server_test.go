package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/httpmocker/httpmocker/pkg/app"
	"github.com/httpmocker/httpmocker/pkg/supervisor"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newTestServer(t *testing.T, opts Options) (*Server, *supervisor.Supervisor) {
	t.Helper()
	dir := t.TempDir()
	sup := supervisor.New(&supervisor.InProcessSpawner{}, supervisor.Options{
		StartTimeout:       2 * time.Second,
		StopTimeout:        time.Second,
		CertStorageRoot:    dir + "/certs",
		HandlerStorageRoot: dir + "/handlers",
	})
	t.Cleanup(func() { _ = sup.StopAll(context.Background()) })
	return NewServer(sup, opts), sup
}

type request struct {
	method  string
	path    string
	headers map[string]string
	body    string
}

func do(t *testing.T, h http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()
	path := req.path
	if path == "" {
		path = AppPath + "/"
	}
	r := httptest.NewRequest(req.method, path, strings.NewReader(req.body))
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateApp_Rejects(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	tests := []struct {
		name    string
		headers map[string]string
		body    string
		status  int
		message string
	}{
		{
			name:    "missing headers",
			status:  http.StatusBadRequest,
			message: "m-app-name and m-app-port not found.",
		},
		{
			name:    "missing port",
			headers: map[string]string{HeaderAppName: "gin"},
			status:  http.StatusBadRequest,
			message: "m-app-name and m-app-port not found.",
		},
		{
			name:    "port not a number",
			headers: map[string]string{HeaderAppName: "gin", HeaderAppPort: "http"},
			status:  http.StatusBadRequest,
			message: "m-app-name and m-app-port not found.",
		},
		{
			name:    "port out of range",
			headers: map[string]string{HeaderAppName: "gin", HeaderAppPort: "70000"},
			status:  http.StatusBadRequest,
			message: "m-app-name and m-app-port not found.",
		},
		{
			name:    "unsupported kind",
			headers: map[string]string{HeaderAppName: "flask", HeaderAppPort: "9000"},
			status:  http.StatusNotFound,
			message: "App flask is not supported",
		},
		{
			name:    "bad ssl flag",
			headers: map[string]string{HeaderAppName: "gin", HeaderAppPort: "9000", HeaderAppEnableSSL: "maybe"},
			status:  http.StatusBadRequest,
			message: "m-app-enable-ssl must be a boolean.",
		},
		{
			name:    "invalid config body",
			headers: map[string]string{HeaderAppName: "gin", HeaderAppPort: "9000"},
			body:    "{not json",
			status:  http.StatusBadRequest,
			message: "Invalid app config.",
		},
		{
			name:    "config is not an object",
			headers: map[string]string{HeaderAppName: "gin", HeaderAppPort: "9000"},
			body:    "[1, 2]",
			status:  http.StatusBadRequest,
			message: "Invalid app config.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s.Handler(), request{method: http.MethodPost, headers: tt.headers, body: tt.body})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decode(t, rec)["error"])
		})
	}
}

func TestAppLifecycle(t *testing.T) {
	for _, kind := range app.Kinds() {
		t.Run(kind, func(t *testing.T) {
			s, sup := newTestServer(t, Options{})
			h := s.Handler()
			port := freePort(t)

			rec := do(t, h, request{
				method: http.MethodPost,
				headers: map[string]string{
					HeaderAppName: strings.ToUpper(kind),
					HeaderAppPort: strconv.Itoa(port),
					HeaderAppHost: "127.0.0.1",
				},
				body: `{"h2c": false}`,
			})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			id := rec.Header().Get(HeaderAppID)
			require.NotEmpty(t, id)
			body := decode(t, rec)
			assert.Equal(t, kind+" app created.", body["msg"])
			assert.Equal(t, id, body["id"])
			assert.Equal(t, 1, sup.Running())

			rec = do(t, h, request{method: http.MethodGet, headers: map[string]string{HeaderAppID: id}})
			require.Equal(t, http.StatusOK, rec.Code)
			var status AppStatusResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
			assert.Equal(t, "running", status.Status)
			assert.Equal(t, "127.0.0.1", status.Host)
			assert.Equal(t, port, status.Port)
			assert.Equal(t, kind, status.Kind)

			resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + app.HealthPath)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			rec = do(t, h, request{method: http.MethodGet, path: AppsPath})
			require.Equal(t, http.StatusOK, rec.Code)
			var apps AppsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apps))
			require.Equal(t, 1, apps.Count)
			assert.Equal(t, id, apps.Apps[0].ID)

			rec = do(t, h, request{method: http.MethodDelete, path: AppPath, headers: map[string]string{HeaderAppID: id}})
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "App "+kind+" stopped.", decode(t, rec)["msg"])
			assert.Equal(t, 0, sup.Running())

			rec = do(t, h, request{method: http.MethodGet, headers: map[string]string{HeaderAppID: id}})
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "App not found.", decode(t, rec)["error"])
		})
	}
}

func TestCreateApp_StartFailure(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	rec := do(t, s.Handler(), request{
		method: http.MethodPost,
		headers: map[string]string{
			HeaderAppName: "servemux",
			HeaderAppPort: strconv.Itoa(port),
			HeaderAppHost: "127.0.0.1",
		},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "app failed to start")
}

func TestCreateApp_SSL(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	port := freePort(t)

	rec := do(t, s.Handler(), request{
		method: http.MethodPost,
		headers: map[string]string{
			HeaderAppName:      "servemux",
			HeaderAppPort:      strconv.Itoa(port),
			HeaderAppHost:      "127.0.0.1",
			HeaderAppEnableSSL: "yes",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s.Handler(), request{method: http.MethodGet, headers: map[string]string{HeaderAppID: rec.Header().Get(HeaderAppID)}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ssl"])
}

func TestAppID_Errors(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rec := do(t, s.Handler(), request{method: method})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "m-app-id not found.", decode(t, rec)["error"])

			rec = do(t, s.Handler(), request{method: method, headers: map[string]string{HeaderAppID: "gin-unknown"}})
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "App not found.", decode(t, rec)["error"])
		})
	}
}

// exitedChild is a child that has already exited.
type exitedChild struct{ done chan struct{} }

func newExitedChild() *exitedChild {
	c := &exitedChild{done: make(chan struct{})}
	close(c.done)
	return c
}

func (c *exitedChild) Pid() int              { return 0 }
func (c *exitedChild) Done() <-chan struct{} { return c.done }
func (c *exitedChild) Err() error            { return errors.New("exit status 1") }
func (c *exitedChild) Terminate() error      { return nil }
func (c *exitedChild) Kill() error           { return nil }

// stubSupervisor serves a fixed process.
type stubSupervisor struct {
	proc    *supervisor.Process
	stopErr error
}

func (s *stubSupervisor) Start(context.Context, supervisor.StartRequest) (*supervisor.Process, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSupervisor) Get(id string) (*supervisor.Process, error) {
	if s.proc == nil || s.proc.ID() != id {
		return nil, supervisor.ErrNotFound
	}
	return s.proc, nil
}

func (s *stubSupervisor) Stop(context.Context, string) error { return s.stopErr }
func (s *stubSupervisor) StopAll(context.Context) error      { return nil }
func (s *stubSupervisor) List() []supervisor.Info            { return nil }
func (s *stubSupervisor) Running() int                       { return 0 }

func TestGetApp_NotRunning(t *testing.T) {
	proc := supervisor.NewProcess(app.Spec{ID: "gin-1", Kind: "gin", Port: 9000}, newExitedChild())
	s := NewServer(&stubSupervisor{proc: proc}, Options{})

	rec := do(t, s.Handler(), request{method: http.MethodGet, headers: map[string]string{HeaderAppID: "gin-1"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "gin app not running.", decode(t, rec)["error"])
}

func TestDeleteApp_StopFailure(t *testing.T) {
	proc := supervisor.NewProcess(app.Spec{ID: "gin-1", Kind: "gin", Port: 9000}, newExitedChild())
	s := NewServer(&stubSupervisor{proc: proc, stopErr: supervisor.ErrStopFailed}, Options{})

	rec := do(t, s.Handler(), request{method: http.MethodDelete, headers: map[string]string{HeaderAppID: "gin-1"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Could not stop the app gin.", decode(t, rec)["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	rec := do(t, h, request{method: http.MethodGet, path: HealthPath})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	do(t, h, request{method: http.MethodGet})

	rec = do(t, h, request{method: http.MethodGet, path: MetricsPath})
	require.Equal(t, http.StatusOK, rec.Code)
	text := rec.Body.String()
	assert.Contains(t, text, "httpmocker_apps_running 0")
	assert.Contains(t, text, `httpmocker_requests_total{method="GET",route="/mock/app",status="400"} 1`)
}

func TestAuth(t *testing.T) {
	const secret = "s3cret"
	s, _ := newTestServer(t, Options{AuthSecret: secret})
	h := s.Handler()

	valid, err := NewToken(secret, "tester", time.Minute)
	require.NoError(t, err)
	expired, err := NewToken(secret, "tester", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewToken("other", "tester", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		auth   string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"not bearer", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.auth != "" {
				headers["Authorization"] = tt.auth
			}
			rec := do(t, h, request{method: http.MethodGet, headers: headers})
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	// A negative ttl still signs; verification must reject it as expired.
	_, err = VerifyToken(secret, expired)
	require.ErrorIs(t, err, ErrUnauthorized)

	rec := do(t, h, request{method: http.MethodGet, path: HealthPath})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServe_StopsAppsOnShutdown(t *testing.T) {
	s, sup := newTestServer(t, Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	req, err := http.NewRequest(http.MethodPost, base+AppPath+"/", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderAppName, "servemux")
	req.Header.Set(HeaderAppPort, strconv.Itoa(freePort(t)))
	req.Header.Set(HeaderAppHost, "127.0.0.1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, sup.Running())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, sup.Running())
	assert.Empty(t, sup.List())
}
