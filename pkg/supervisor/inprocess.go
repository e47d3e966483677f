package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/httpmocker/httpmocker/pkg/app"
	"github.com/httpmocker/httpmocker/pkg/logging"
)

// InProcessSpawner serves each app from a goroutine of the current process.
// Handler code then shares the controller's address space, so it is meant
// for platforms without process groups and for tests.
type InProcessSpawner struct {
	Logger *slog.Logger
}

// Spawn implements Spawner.
func (s *InProcessSpawner) Spawn(_ context.Context, spec app.Spec) (Child, error) {
	log := s.Logger
	if log == nil {
		log = logging.Nop()
	}

	a, err := app.New(spec, app.WithLogger(log.With("app_id", spec.ID)))
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &goroutineChild{cancel: cancel, done: make(chan struct{})}
	go func() {
		c.err = a.Serve(ctx, ln)
		close(c.done)
	}()
	return c, nil
}

type goroutineChild struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (c *goroutineChild) Pid() int              { return 0 }
func (c *goroutineChild) Done() <-chan struct{} { return c.done }

func (c *goroutineChild) Err() error {
	<-c.done
	return c.err
}

func (c *goroutineChild) Terminate() error {
	c.cancel()
	return nil
}

func (c *goroutineChild) Kill() error {
	c.cancel()
	return nil
}
