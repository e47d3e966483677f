package handler

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/httpmocker/httpmocker/pkg/logging"
)

// Loader turns handler sources into Modules.
type Loader struct {
	storage *Storage
	log     *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(log *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoader creates a Loader that saves sources to storage before loading.
func NewLoader(storage *Storage, opts ...LoaderOption) *Loader {
	l := &Loader{
		storage: storage,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load saves spec.Source and builds its Module. Every failure to produce a
// route table wraps ErrInvalidHandler.
func (l *Loader) Load(ctx context.Context, spec Spec) (*Module, error) {
	if err := ValidateName(spec.Name); err != nil {
		return nil, err
	}
	if spec.Format == "" {
		spec.Format = FormatGo
	}
	if spec.Symbol == "" {
		spec.Symbol = DefaultSymbol
	}

	path, cleanup, err := l.storage.Save(spec.Name, spec.Source, spec.Format, spec.Temp)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cleanup(); err != nil {
			l.log.Warn("failed to remove temporary handler", "handler", spec.Name, "error", err)
		}
	}()

	var routes []Route
	switch spec.Format {
	case FormatGo:
		routes, err = loadGo(ctx, path, spec.Symbol)
	case FormatYAML:
		routes, err = loadYAMLFile(path)
	default:
		err = fmt.Errorf("unsupported format %q", spec.Format)
	}
	if err != nil {
		l.log.Debug("handler load failed", "handler", spec.Name, "format", spec.Format, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidHandler, spec.Name, err)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: %s declares no routes", ErrInvalidHandler, spec.Name)
	}

	l.log.Debug("handler loaded", "handler", spec.Name, "format", spec.Format, "routes", len(routes), "temp", spec.Temp)
	return &Module{Name: spec.Name, Format: spec.Format, Routes: routes}, nil
}

func loadYAMLFile(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseYAML(data)
}
