package app

import (
	"net/http"

	"github.com/httpmocker/httpmocker/pkg/handler"
)

// serveMuxKind routes with net/http's ServeMux patterns.
type serveMuxKind struct{}

func (serveMuxKind) Name() string { return "servemux" }

func (k serveMuxKind) Build(routes []handler.Route) (http.Handler, error) {
	return buildSafely(k.Name(), func() http.Handler {
		mux := http.NewServeMux()
		for _, r := range routes {
			pattern := r.Pattern
			if !r.AnyMethod() {
				pattern = r.Method + " " + r.Pattern
			}
			mux.Handle(pattern, r.Handler)
		}
		return mux
	})
}
