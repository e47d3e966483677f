package handler

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"net/http"
	"reflect"
	"sort"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/httpmocker/httpmocker/pkg/handlerdata"
)

var (
	handlerFuncType = reflect.TypeOf(http.HandlerFunc(nil))
	rawFuncType     = reflect.TypeOf((func(http.ResponseWriter, *http.Request))(nil))
	handlerIface    = reflect.TypeOf((*http.Handler)(nil)).Elem()
)

// loadGo interprets the Go file at path and reads its route table from
// symbol.
func loadGo(ctx context.Context, path, symbol string) ([]Route, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.PackageClauseOnly)
	if err != nil {
		return nil, err
	}
	pkg := file.Name.Name

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, err
	}
	if err := i.Use(handlerdata.Symbols); err != nil {
		return nil, err
	}
	if _, err := i.EvalPathWithContext(ctx, path); err != nil {
		return nil, err
	}

	ref := symbol
	if pkg != "main" {
		ref = pkg + "." + symbol
	}
	v, err := i.Eval(ref)
	if err != nil {
		return nil, fmt.Errorf("symbol %s not found: %w", symbol, err)
	}
	return routesFromValue(symbol, v)
}

// routesFromValue accepts a route map or a function returning one.
func routesFromValue(symbol string, v reflect.Value) ([]Route, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("%s is undefined", symbol)
	}

	switch fn := v.Interface().(type) {
	case func() map[string]http.HandlerFunc:
		return routesFromMap(symbol, reflect.ValueOf(fn()))
	case map[string]http.HandlerFunc:
		return routesFromMap(symbol, reflect.ValueOf(fn))
	}

	if v.Kind() == reflect.Func {
		if v.Type().NumIn() != 0 || v.Type().NumOut() != 1 {
			return nil, fmt.Errorf("%s must be a func() map[string]http.HandlerFunc", symbol)
		}
		v = v.Call(nil)[0]
	}
	return routesFromMap(symbol, v)
}

func routesFromMap(symbol string, m reflect.Value) ([]Route, error) {
	for m.Kind() == reflect.Interface && !m.IsNil() {
		m = m.Elem()
	}
	if m.Kind() != reflect.Map || m.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("%s must provide a map[string]http.HandlerFunc, got %s", symbol, m.Type())
	}

	keys := make([]string, 0, m.Len())
	for _, k := range m.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	routes := make([]Route, 0, len(keys))
	for _, key := range keys {
		method, pattern, err := ParseRouteKey(key)
		if err != nil {
			return nil, err
		}
		h, err := asHandler(m.MapIndex(reflect.ValueOf(key).Convert(m.Type().Key())))
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", key, err)
		}
		routes = append(routes, Route{Method: method, Pattern: pattern, Handler: h})
	}
	return routes, nil
}

func asHandler(v reflect.Value) (http.Handler, error) {
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if !v.IsValid() || (v.Kind() == reflect.Func && v.IsNil()) {
		return nil, fmt.Errorf("nil handler")
	}

	switch {
	case v.Type().Implements(handlerIface):
		return v.Interface().(http.Handler), nil
	case v.Type().ConvertibleTo(handlerFuncType):
		return v.Convert(handlerFuncType).Interface().(http.HandlerFunc), nil
	case v.Type().ConvertibleTo(rawFuncType):
		return http.HandlerFunc(v.Convert(rawFuncType).Interface().(func(http.ResponseWriter, *http.Request))), nil
	default:
		return nil, fmt.Errorf("unsupported handler type %s", v.Type())
	}
}
