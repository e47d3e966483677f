package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/httpmocker/httpmocker/pkg/handlerdata"
)

const yamlSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["routes"],
  "additionalProperties": false,
  "properties": {
    "routes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["path"],
        "additionalProperties": false,
        "properties": {
          "method":   {"type": "string", "pattern": "^([A-Za-z]+|\\*)$"},
          "path":     {"type": "string", "pattern": "^/"},
          "status":   {"type": "integer", "minimum": 100, "maximum": 599},
          "headers":  {"type": "object", "additionalProperties": {"type": "string"}},
          "body":     {},
          "dataPath": {"type": "string", "minLength": 1},
          "expr":     {"type": "string", "minLength": 1}
        },
        "not": {"required": ["dataPath", "expr"]}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("handler.json", strings.NewReader(yamlSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("handler.json")
	})
	return schema, schemaErr
}

type yamlDoc struct {
	Routes []yamlRoute `yaml:"routes"`
}

type yamlRoute struct {
	Method   string            `yaml:"method"`
	Path     string            `yaml:"path"`
	Status   int               `yaml:"status"`
	Headers  map[string]string `yaml:"headers"`
	Body     any               `yaml:"body"`
	DataPath string            `yaml:"dataPath"`
	Expr     string            `yaml:"expr"`
}

func parseYAML(data []byte) ([]Route, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	// Re-encode through JSON so the validator sees JSON types.
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, err
	}

	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile handler schema: %w", err)
	}
	if err := s.Validate(instance); err != nil {
		return nil, schemaError(err)
	}

	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	routes := make([]Route, 0, len(doc.Routes))
	for _, yr := range doc.Routes {
		h, err := newYAMLHandler(yr)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", yr.Path, err)
		}
		method := strings.ToUpper(yr.Method)
		if method == "" {
			method = AnyMethod
		}
		routes = append(routes, Route{Method: method, Pattern: yr.Path, Handler: h})
	}
	return routes, nil
}

func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Errorf("schema violation at %s: %s", loc, ve.Message)
}

// yamlHandler answers with a body computed from the route definition.
type yamlHandler struct {
	status  int
	headers map[string]string
	body    any
	params  []string

	dataPath string
	program  *vm.Program
}

func newYAMLHandler(yr yamlRoute) (*yamlHandler, error) {
	h := &yamlHandler{
		status:   yr.Status,
		headers:  yr.Headers,
		body:     normalizeYAML(yr.Body),
		params:   PatternParams(yr.Path),
		dataPath: yr.DataPath,
	}
	if h.status == 0 {
		h.status = http.StatusOK
	}
	if yr.Expr != "" {
		program, err := expr.Compile(yr.Expr)
		if err != nil {
			return nil, fmt.Errorf("compile expr: %w", err)
		}
		h.program = program
	}
	return h, nil
}

func (h *yamlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := h.resolve(r)
	if err != nil {
		handlerdata.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	for k, v := range h.headers {
		w.Header().Set(k, v)
	}

	if s, ok := body.(string); ok {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		w.WriteHeader(h.status)
		_, _ = w.Write([]byte(s))
		return
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(h.status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *yamlHandler) resolve(r *http.Request) (any, error) {
	data := handlerdata.Value(r)

	switch {
	case h.program != nil:
		out, err := expr.Run(h.program, h.env(r, data))
		if err != nil {
			return nil, fmt.Errorf("eval expr: %w", err)
		}
		return out, nil
	case h.dataPath != "":
		out, err := handlerdata.Select(data, h.dataPath)
		if errors.Is(err, handlerdata.ErrNotFound) {
			return h.body, nil
		}
		return out, err
	case h.body != nil:
		return h.body, nil
	default:
		return data, nil
	}
}

func (h *yamlHandler) env(r *http.Request, data any) map[string]any {
	query := make(map[string]any, len(r.URL.Query()))
	for k, v := range r.URL.Query() {
		query[k] = v[0]
	}
	headers := make(map[string]any, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	params := make(map[string]any, len(h.params))
	for _, name := range h.params {
		params[name] = r.PathValue(name)
	}
	return map[string]any{
		"data":    data,
		"method":  r.Method,
		"path":    r.URL.Path,
		"query":   query,
		"headers": headers,
		"params":  params,
	}
}

// normalizeYAML converts yaml.v3 decoded values to JSON-compatible ones.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
