package handler

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
)

var (
	// ErrInvalidHandler is returned when submitted source cannot be turned
	// into a route table.
	ErrInvalidHandler = errors.New("invalid handler")

	// ErrInvalidName is returned for handler names outside [A-Za-z0-9_-].
	ErrInvalidName = errors.New("invalid handler name")
)

// Format identifies how handler source is interpreted.
type Format string

// Supported formats.
const (
	FormatGo   Format = "go"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a header value to a Format. Empty means Go.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "go":
		return FormatGo, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errors.New("unknown handler format: " + s)
	}
}

func (f Format) ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".go"
}

// DefaultSymbol is the route-table function looked up in Go sources.
const DefaultSymbol = "Routes"

// AnyMethod matches every request method.
const AnyMethod = "*"

// Spec describes one load request.
type Spec struct {
	Name   string
	Source []byte
	Format Format
	// Symbol overrides DefaultSymbol for Go sources.
	Symbol string
	// Temp stores the source in the scratch area and removes it once loaded.
	// Unregistration loads handlers this way to learn their route keys.
	Temp bool
}

// Route is a single method and path pattern served by a handler.
type Route struct {
	Method  string       `json:"method"`
	Pattern string       `json:"pattern"`
	Handler http.Handler `json:"-"`
}

// Key identifies a route within a route table.
func (r Route) Key() string {
	return r.Method + " " + r.Pattern
}

// AnyMethod reports whether the route accepts every method.
func (r Route) AnyMethod() bool {
	return r.Method == AnyMethod
}

// Module is the loaded form of a handler.
type Module struct {
	Name   string  `json:"name"`
	Format Format  `json:"format"`
	Routes []Route `json:"routes"`
}

// Keys returns the route keys in declaration order.
func (m *Module) Keys() []string {
	keys := make([]string, len(m.Routes))
	for i, r := range m.Routes {
		keys[i] = r.Key()
	}
	return keys
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName checks a handler name.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

var methodRe = regexp.MustCompile(`^[A-Z]+$`)

// ParseRouteKey splits "METHOD /pattern" or "/pattern" into its parts.
func ParseRouteKey(key string) (method, pattern string, err error) {
	key = strings.TrimSpace(key)
	method = AnyMethod
	pattern = key
	if i := strings.IndexAny(key, " \t"); i >= 0 {
		method = strings.ToUpper(key[:i])
		pattern = strings.TrimSpace(key[i+1:])
		if !methodRe.MatchString(method) {
			return "", "", errors.New("invalid method in route " + key)
		}
	}
	if !strings.HasPrefix(pattern, "/") {
		return "", "", errors.New("route pattern must start with /: " + key)
	}
	return method, pattern, nil
}

// PatternParams returns the wildcard names in a pattern, without the
// trailing "..." of a rest wildcard.
func PatternParams(pattern string) []string {
	var names []string
	for _, seg := range strings.Split(pattern, "/") {
		if len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
			names = append(names, strings.TrimSuffix(seg[1:len(seg)-1], "..."))
		}
	}
	return names
}
