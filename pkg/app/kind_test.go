package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/httpmocker/httpmocker/pkg/handler"
)

type namedKind string

func (k namedKind) Name() string { return string(k) }

func (namedKind) Build([]handler.Route) (http.Handler, error) { return http.NotFoundHandler(), nil }

func TestRegister_DuplicatePanics(t *testing.T) {
	assert.PanicsWithError(t, "app kind registered twice: gin", func() {
		Register(namedKind("GIN"))
	})
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"gin", "gorilla", "servemux"}, Kinds())

	k, err := Lookup(" Gorilla ")
	require.NoError(t, err)
	assert.Equal(t, "gorilla", k.Name())

	_, err = Lookup("flask")
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func echoParams(names ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := r.Method
		for _, n := range names {
			out += " " + n + "=" + r.PathValue(n)
		}
		_, _ = w.Write([]byte(out))
	})
}

func TestKinds_Build(t *testing.T) {
	routes := []handler.Route{
		{Method: "GET", Pattern: "/users/{id}", Handler: echoParams("id")},
		{Method: "*", Pattern: "/any", Handler: echoParams()},
		{Method: "GET", Pattern: "/files/{path...}", Handler: echoParams("path")},
	}

	tests := []struct {
		method string
		target string
		status int
		body   string
	}{
		{http.MethodGet, "/users/7", http.StatusOK, "GET id=7"},
		{http.MethodPut, "/any", http.StatusOK, "PUT"},
		{http.MethodDelete, "/any", http.StatusOK, "DELETE"},
		{http.MethodGet, "/files/a/b.txt", http.StatusOK, "GET path=a/b.txt"},
		{http.MethodGet, "/missing", http.StatusNotFound, ""},
	}

	for _, name := range Kinds() {
		kind, err := Lookup(name)
		require.NoError(t, err)
		router, err := kind.Build(routes)
		require.NoError(t, err, name)

		for _, tt := range tests {
			t.Run(name+" "+tt.method+" "+tt.target, func(t *testing.T) {
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
				assert.Equal(t, tt.status, rec.Code)
				if tt.body != "" {
					assert.Equal(t, tt.body, rec.Body.String())
				}
			})
		}
	}
}

func TestKinds_BuildConflict(t *testing.T) {
	routes := []handler.Route{
		{Method: "GET", Pattern: "/a/{id}", Handler: echoParams()},
		{Method: "GET", Pattern: "/a/{name}", Handler: echoParams()},
	}
	for _, name := range []string{"servemux", "gin"} {
		t.Run(name, func(t *testing.T) {
			kind, err := Lookup(name)
			require.NoError(t, err)
			_, err = kind.Build(routes)
			assert.ErrorIs(t, err, ErrRouteConflict)
		})
	}
}

func TestPatternTranslation(t *testing.T) {
	assert.Equal(t, "/users/:id/files/*rest", ginPattern("/users/{id}/files/{rest...}"))
	assert.Equal(t, "/static", ginPattern("/static"))
	assert.Equal(t, "/users/{id}/files/{rest:.*}", gorillaPattern("/users/{id}/files/{rest...}"))
}
