package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/httpmocker/httpmocker/pkg/handlerdata"
)

const greetSource = `package greet

import (
	"net/http"

	"github.com/httpmocker/httpmocker/pkg/handlerdata"
)

func Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"GET /hello": func(w http.ResponseWriter, r *http.Request) {
			handlerdata.WriteJSON(w, http.StatusOK, handlerdata.From(r))
		},
		"/ping": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("pong"))
		},
	}
}
`

func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	root := t.TempDir()
	return NewLoader(NewStorage(root)), root
}

func serve(t *testing.T, h http.Handler, data any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	if data != nil {
		req = req.WithContext(handlerdata.NewContext(req.Context(), data))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestParseRouteKey(t *testing.T) {
	tests := []struct {
		key         string
		wantMethod  string
		wantPattern string
		wantErr     bool
	}{
		{"GET /users", "GET", "/users", false},
		{"post /users/{id}", "POST", "/users/{id}", false},
		{"/any", AnyMethod, "/any", false},
		{"GET users", "", "", true},
		{"G3T /x", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			method, pattern, err := ParseRouteKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, method)
			assert.Equal(t, tt.wantPattern, pattern)
		})
	}
}

func TestPatternParams(t *testing.T) {
	assert.Equal(t, []string{"id", "rest"}, PatternParams("/users/{id}/files/{rest...}"))
	assert.Nil(t, PatternParams("/static"))
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"greet", "my-handler_2"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", "../etc", "a b", "x.go", "a/b"} {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidName, name)
	}
}

func TestStorage_Save(t *testing.T) {
	root := t.TempDir()
	s := NewStorage(root)

	path, cleanup, err := s.Save("greet", []byte("package greet"), FormatGo, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "greet.go"), path)
	assert.Equal(t, path, s.Path("greet", FormatGo))
	require.NoError(t, cleanup())
	assert.FileExists(t, path)

	_, _, err = s.Save("../x", nil, FormatGo, false)
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestStorage_TempCleanup(t *testing.T) {
	root := t.TempDir()
	s := NewStorage(root)

	path, cleanup, err := s.Save("greet", []byte("routes: []"), FormatYAML, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "tmp"), filepath.Dir(filepath.Dir(path)))
	assert.Equal(t, "greet.yaml", filepath.Base(path))

	derived := path + ".cache"
	require.NoError(t, os.WriteFile(derived, nil, 0o644))

	require.NoError(t, cleanup())
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, derived)
	assert.NoDirExists(t, filepath.Dir(path))
}

func TestStorage_TempCleanupKeepsOtherHandlers(t *testing.T) {
	s := NewStorage(t.TempDir())

	users, cleanUsers, err := s.Save("users", []byte("package users"), FormatGo, true)
	require.NoError(t, err)
	user, cleanUser, err := s.Save("user", []byte("package user"), FormatGo, true)
	require.NoError(t, err)
	again, cleanAgain, err := s.Save("users", []byte("package users"), FormatGo, true)
	require.NoError(t, err)
	assert.NotEqual(t, users, again)

	require.NoError(t, cleanUser())
	assert.NoFileExists(t, user)
	assert.FileExists(t, users)
	assert.FileExists(t, again)

	require.NoError(t, cleanAgain())
	assert.FileExists(t, users)
	require.NoError(t, cleanUsers())
	assert.NoFileExists(t, users)
}

func TestLoader_Go(t *testing.T) {
	l, root := newTestLoader(t)

	mod, err := l.Load(context.Background(), Spec{Name: "greet", Source: []byte(greetSource)})
	require.NoError(t, err)

	assert.Equal(t, "greet", mod.Name)
	assert.Equal(t, FormatGo, mod.Format)
	assert.Equal(t, []string{"* /ping", "GET /hello"}, mod.Keys())
	assert.FileExists(t, filepath.Join(root, "greet.go"))

	var hello http.Handler
	for _, r := range mod.Routes {
		if r.Pattern == "/hello" {
			hello = r.Handler
		}
	}
	require.NotNil(t, hello)

	rec := serve(t, hello, map[string]any{"msg": "hi"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"msg":"hi"}`, rec.Body.String())
}

func TestLoader_GoCustomSymbol(t *testing.T) {
	l, _ := newTestLoader(t)
	src := `package main

import "net/http"

func Views() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"DELETE /items/{id}": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	}
}
`
	mod, err := l.Load(context.Background(), Spec{Name: "items", Source: []byte(src), Symbol: "Views"})
	require.NoError(t, err)
	assert.Equal(t, []string{"DELETE /items/{id}"}, mod.Keys())
}

func TestLoader_GoTempRemovesSource(t *testing.T) {
	l, root := newTestLoader(t)

	mod, err := l.Load(context.Background(), Spec{Name: "greet", Source: []byte(greetSource), Temp: true})
	require.NoError(t, err)
	assert.Len(t, mod.Routes, 2)
	entries, err := os.ReadDir(filepath.Join(root, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoFileExists(t, filepath.Join(root, "greet.go"))
}

func TestLoader_InvalidGo(t *testing.T) {
	tests := []struct {
		name   string
		source string
		symbol string
	}{
		{"syntax error", "package broken\nfunc Routes( {", ""},
		{"missing symbol", "package empty\n", ""},
		{"wrong type", "package wrong\nvar Routes = 42\n", ""},
		{"bad route key", "package badkey\nimport \"net/http\"\nfunc Routes() map[string]http.HandlerFunc {\n\treturn map[string]http.HandlerFunc{\"nope\": nil}\n}\n", ""},
		{"no routes", "package none\nimport \"net/http\"\nfunc Routes() map[string]http.HandlerFunc { return nil }\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLoader(t)
			_, err := l.Load(context.Background(), Spec{Name: "h", Source: []byte(tt.source), Symbol: tt.symbol})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidHandler)
		})
	}
}

func TestLoader_InvalidName(t *testing.T) {
	l, _ := newTestLoader(t)
	_, err := l.Load(context.Background(), Spec{Name: "bad name", Source: []byte(greetSource)})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatGo, f)

	f, err = ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("python")
	assert.Error(t, err)
}
