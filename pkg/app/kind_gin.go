package app

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/httpmocker/httpmocker/pkg/handler"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// ginKind routes with gin.
type ginKind struct{}

func (ginKind) Name() string { return "gin" }

func (k ginKind) Build(routes []handler.Route) (http.Handler, error) {
	return buildSafely(k.Name(), func() http.Handler {
		engine := gin.New()
		for _, r := range routes {
			h := ginHandler(r.Handler)
			path := ginPattern(r.Pattern)
			if r.AnyMethod() {
				engine.Any(path, h)
				continue
			}
			engine.Handle(r.Method, path, h)
		}
		return engine
	})
}

// ginPattern rewrites {name} as :name and {name...} as *name.
func ginPattern(pattern string) string {
	segs := strings.Split(pattern, "/")
	for i, seg := range segs {
		if len(seg) < 3 || seg[0] != '{' || seg[len(seg)-1] != '}' {
			continue
		}
		name := seg[1 : len(seg)-1]
		if rest, ok := strings.CutSuffix(name, "..."); ok {
			segs[i] = "*" + rest
		} else {
			segs[i] = ":" + name
		}
	}
	return strings.Join(segs, "/")
}

// ginHandler exposes gin params through Request.PathValue.
func ginHandler(next http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range c.Params {
			c.Request.SetPathValue(p.Key, strings.TrimPrefix(p.Value, "/"))
		}
		next.ServeHTTP(c.Writer, c.Request)
	}
}
