package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync"

	"github.com/httpmocker/httpmocker/pkg/app"
)

// EnvAppSpec carries the JSON encoded app.Spec to a child process.
const EnvAppSpec = "HTTPMOCKER_APP_SPEC"

// Spawner starts app processes.
type Spawner interface {
	Spawn(ctx context.Context, spec app.Spec) (Child, error)
}

// ExecSpawner runs each app as "<binary> app run" in a new process group.
type ExecSpawner struct {
	// Binary defaults to the current executable.
	Binary string
	// Args are inserted before the "app run" arguments.
	Args []string
	// LogLevel is forwarded to the child.
	LogLevel string
	Logger   *slog.Logger
}

// Spawn starts the child. The child outlives ctx; use Terminate or Kill to
// stop it.
func (s *ExecSpawner) Spawn(_ context.Context, spec app.Spec) (Child, error) {
	bin := s.Binary
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		bin = exe
	}

	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode app spec: %w", err)
	}

	args := append([]string{}, s.Args...)
	args = append(args, "app", "run",
		"--id", spec.ID,
		"--kind", spec.Kind,
		"--port", strconv.Itoa(spec.Port),
	)
	if s.LogLevel != "" {
		args = append(args, "--log-level", s.LogLevel)
	}

	//nolint:gosec // G204: bin is our own executable
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), EnvAppSpec+"="+string(payload))
	setProcessGroup(cmd)

	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	out := newLineLogger(log.With("app_id", spec.ID))
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	c := &execChild{cmd: cmd, done: make(chan struct{}), out: out}
	go c.wait()
	return c, nil
}

type execChild struct {
	cmd  *exec.Cmd
	done chan struct{}
	out  *lineLogger
	err  error
}

func (c *execChild) wait() {
	c.err = c.cmd.Wait()
	c.out.Flush()
	close(c.done)
}

func (c *execChild) Pid() int              { return c.cmd.Process.Pid }
func (c *execChild) Done() <-chan struct{} { return c.done }

func (c *execChild) Err() error {
	<-c.done
	return c.err
}

func (c *execChild) Terminate() error {
	return terminateGroup(c.cmd.Process.Pid)
}

func (c *execChild) Kill() error {
	return killGroup(c.cmd.Process.Pid)
}

// lineLogger logs each line written to it.
type lineLogger struct {
	log *slog.Logger

	mu  sync.Mutex
	buf bytes.Buffer
}

func newLineLogger(log *slog.Logger) *lineLogger {
	return &lineLogger{log: log}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(p)
	for {
		line, err := l.buf.ReadBytes('\n')
		if err != nil {
			// Keep the partial line for the next write.
			rest := append([]byte(nil), line...)
			l.buf.Reset()
			l.buf.Write(rest)
			break
		}
		l.emit(line)
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.emit(l.buf.Bytes())
		l.buf.Reset()
	}
}

// emit relays one line of child output. JSON slog records keep their level,
// message and attributes; anything else is logged under the child key.
func (l *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}

	var rec map[string]any
	if err := json.Unmarshal(line, &rec); err != nil {
		l.log.Info("child output", "child", string(line))
		return
	}
	msg, ok := rec[slog.MessageKey].(string)
	if !ok {
		l.log.Info("child output", "child", string(line))
		return
	}

	level := slog.LevelInfo
	if s, ok := rec[slog.LevelKey].(string); ok {
		_ = level.UnmarshalText([]byte(s))
	}
	for _, key := range []string{slog.TimeKey, slog.LevelKey, slog.MessageKey, "app_id"} {
		delete(rec, key)
	}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, rec[k]))
	}
	l.log.LogAttrs(context.Background(), level, msg, attrs...)
}
