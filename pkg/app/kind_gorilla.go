package app

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/httpmocker/httpmocker/pkg/handler"
)

// gorillaKind routes with gorilla/mux.
type gorillaKind struct{}

func (gorillaKind) Name() string { return "gorilla" }

func (k gorillaKind) Build(routes []handler.Route) (http.Handler, error) {
	return buildSafely(k.Name(), func() http.Handler {
		r := mux.NewRouter()
		for _, route := range routes {
			mr := r.Handle(gorillaPattern(route.Pattern), gorillaVars(route.Handler))
			if !route.AnyMethod() {
				mr.Methods(route.Method)
			}
			if err := mr.GetError(); err != nil {
				panic(err)
			}
		}
		return r
	})
}

// gorillaPattern rewrites rest wildcards {name...} as {name:.*}.
func gorillaPattern(pattern string) string {
	segs := strings.Split(pattern, "/")
	for i, seg := range segs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "...}") {
			segs[i] = "{" + strings.TrimSuffix(seg[1:], "...}") + ":.*}"
		}
	}
	return strings.Join(segs, "/")
}

// gorillaVars exposes mux variables through Request.PathValue.
func gorillaVars(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range mux.Vars(r) {
			r.SetPathValue(k, v)
		}
		next.ServeHTTP(w, r)
	})
}
