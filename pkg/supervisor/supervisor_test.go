package supervisor

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/httpmocker/httpmocker/pkg/app"
)

// fakeChild runs an app in-process.
type fakeChild struct {
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
	ignoreTerm bool

	mu     sync.Mutex
	killed bool
}

func (c *fakeChild) Pid() int              { return 0 }
func (c *fakeChild) Done() <-chan struct{} { return c.done }
func (c *fakeChild) Err() error            { <-c.done; return c.err }

func (c *fakeChild) Terminate() error {
	if !c.ignoreTerm {
		c.cancel()
	}
	return nil
}

func (c *fakeChild) Kill() error {
	c.mu.Lock()
	c.killed = true
	c.mu.Unlock()
	c.cancel()
	return nil
}

type childMode int

const (
	modeServe childMode = iota
	modeCrash
	modeHang
	modeBindFails
)

type fakeSpawner struct {
	mode       childMode
	ignoreTerm bool
	spawnErr   error

	mu       sync.Mutex
	children []*fakeChild
}

func (f *fakeSpawner) Spawn(_ context.Context, spec app.Spec) (Child, error) {
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &fakeChild{cancel: cancel, done: make(chan struct{}), ignoreTerm: f.ignoreTerm}

	switch f.mode {
	case modeCrash:
		c.err = errors.New("boom")
		close(c.done)
	case modeHang:
		go func() {
			<-ctx.Done()
			close(c.done)
		}()
	case modeBindFails:
		go func() {
			select {
			case <-time.After(300 * time.Millisecond):
				c.err = errors.New("bind: address already in use")
			case <-ctx.Done():
			}
			close(c.done)
		}()
	default:
		a, err := app.New(spec)
		if err != nil {
			cancel()
			return nil, err
		}
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(spec.Port)))
		if err != nil {
			cancel()
			return nil, err
		}
		go func() {
			c.err = a.Serve(ctx, ln)
			close(c.done)
		}()
	}

	f.mu.Lock()
	f.children = append(f.children, c)
	f.mu.Unlock()
	return c, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newSupervisor(t *testing.T, sp Spawner) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	s := New(sp, Options{
		StartTimeout:       2 * time.Second,
		StopTimeout:        200 * time.Millisecond,
		CertStorageRoot:    dir + "/certs",
		HandlerStorageRoot: dir + "/handlers",
	})
	t.Cleanup(func() { _ = s.StopAll(context.Background()) })
	return s
}

func TestSupervisor_StartStop(t *testing.T) {
	s := newSupervisor(t, &fakeSpawner{})
	ctx := context.Background()

	p, err := s.Start(ctx, StartRequest{Kind: "Gin", Host: "127.0.0.1", Port: freePort(t)})
	require.NoError(t, err)

	assert.Regexp(t, `^gin-[0-9a-f-]{36}$`, p.ID())
	assert.Equal(t, "gin", p.Spec.Kind)
	assert.Equal(t, StatusRunning, p.Status())
	assert.True(t, s.IsAlive(p.ID()))
	assert.Equal(t, 1, s.Running())

	got, err := s.Get(p.ID())
	require.NoError(t, err)
	assert.Same(t, p, got)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, p.ID(), list[0].ID)
	assert.False(t, list[0].SSL)

	require.NoError(t, s.Stop(ctx, p.ID()))
	assert.Equal(t, StatusExited, p.Status())
	assert.False(t, s.IsAlive(p.ID()))
	assert.Eventually(t, func() bool { return p.Info().ExitedAt != nil }, time.Second, 10*time.Millisecond)

	_, err = s.Get(p.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Stop(ctx, p.ID()), ErrNotFound)
}

func TestSupervisor_StartSSL(t *testing.T) {
	s := newSupervisor(t, &fakeSpawner{})
	ctx := context.Background()

	p, err := s.Start(ctx, StartRequest{Kind: "servemux", Host: "127.0.0.1", Port: freePort(t), EnableSSL: true})
	require.NoError(t, err)
	assert.True(t, p.Spec.TLSEnabled())
	assert.FileExists(t, p.Spec.CertFile)
	assert.Contains(t, HealthURL(p.Spec), "https://127.0.0.1:")

	require.NoError(t, s.Stop(ctx, p.ID()))
	_, err = os.Stat(p.Spec.CertFile)
	assert.True(t, os.IsNotExist(err))
}

func TestSupervisor_StartErrors(t *testing.T) {
	tests := []struct {
		name    string
		spawner *fakeSpawner
		req     StartRequest
		wantErr error
	}{
		{"unsupported kind", &fakeSpawner{}, StartRequest{Kind: "flask", Port: 1}, app.ErrUnsupportedKind},
		{"bad port", &fakeSpawner{}, StartRequest{Kind: "gin", Port: 70000}, ErrStartFailed},
		{"spawn error", &fakeSpawner{spawnErr: errors.New("no exec")}, StartRequest{Kind: "gin", Port: 1}, ErrStartFailed},
		{"child crashes", &fakeSpawner{mode: modeCrash}, StartRequest{Kind: "gin", Port: 1}, ErrStartFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSupervisor(t, tt.spawner)
			_, err := s.Start(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, s.List())
		})
	}
}

func TestSupervisor_StartTimeoutStopsChild(t *testing.T) {
	sp := &fakeSpawner{mode: modeHang}
	s := New(sp, Options{StartTimeout: 300 * time.Millisecond, StopTimeout: 100 * time.Millisecond, CertStorageRoot: t.TempDir()})

	start := time.Now()
	_, err := s.Start(context.Background(), StartRequest{Kind: "gorilla", Host: "127.0.0.1", Port: freePort(t)})
	require.ErrorIs(t, err, ErrStartFailed)
	assert.Less(t, time.Since(start), 3*time.Second)

	require.Len(t, sp.children, 1)
	select {
	case <-sp.children[0].Done():
	case <-time.After(time.Second):
		t.Fatal("hung child was not stopped")
	}
}

func TestSupervisor_StopKillsAfterTimeout(t *testing.T) {
	sp := &fakeSpawner{ignoreTerm: true}
	s := newSupervisor(t, sp)

	p, err := s.Start(context.Background(), StartRequest{Kind: "servemux", Host: "127.0.0.1", Port: freePort(t)})
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background(), p.ID()))
	sp.children[0].mu.Lock()
	defer sp.children[0].mu.Unlock()
	assert.True(t, sp.children[0].killed)
}

func TestSupervisor_StopAll(t *testing.T) {
	s := newSupervisor(t, &fakeSpawner{})
	ctx := context.Background()

	for _, kind := range []string{"servemux", "gorilla", "gin"} {
		_, err := s.Start(ctx, StartRequest{Kind: kind, Host: "127.0.0.1", Port: freePort(t)})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Running())

	require.NoError(t, s.StopAll(ctx))
	assert.Empty(t, s.List())
}

func TestHealthURL(t *testing.T) {
	tests := []struct {
		spec app.Spec
		want string
	}{
		{app.Spec{Host: "0.0.0.0", Port: 80}, "http://127.0.0.1:80/mock/app/health"},
		{app.Spec{Host: "", Port: 80}, "http://127.0.0.1:80/mock/app/health"},
		{app.Spec{Host: "::", Port: 80}, "http://[::1]:80/mock/app/health"},
		{app.Spec{Host: "example.test", Port: 8443, CertFile: "c", KeyFile: "k"}, "https://example.test:8443/mock/app/health"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, HealthURL(tt.spec))
		})
	}
}

func TestSupervisor_StartOnOccupiedPort(t *testing.T) {
	tests := []struct {
		name string
		mode childMode
	}{
		{"child exits", modeBindFails},
		{"child never listens", modeHang},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := &fakeSpawner{}
			s := newSupervisor(t, sp)
			ctx := context.Background()
			port := freePort(t)

			first, err := s.Start(ctx, StartRequest{Kind: "servemux", Host: "127.0.0.1", Port: port})
			require.NoError(t, err)

			sp.mode = tt.mode
			_, err = s.Start(ctx, StartRequest{Kind: "gin", Host: "127.0.0.1", Port: port})
			require.ErrorIs(t, err, ErrStartFailed)

			list := s.List()
			require.Len(t, list, 1)
			assert.Equal(t, first.ID(), list[0].ID)
			assert.True(t, s.IsAlive(first.ID()))
		})
	}
}
