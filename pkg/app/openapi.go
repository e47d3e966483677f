package app

import (
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/httpmocker/httpmocker/pkg/handler"
)

// anyMethods are documented for routes that accept every method.
var anyMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// OpenAPI describes the current route table as an OpenAPI 3 document.
func (a *App) OpenAPI() *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "httpmocker " + a.spec.Kind + " app " + a.spec.ID,
			Version: "1.0.0",
		},
		Paths: openapi3.NewPaths(),
	}

	for _, e := range a.current().table.entries {
		path := openAPIPath(e.route.Pattern)
		item := doc.Paths.Value(path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(path, item)
		}

		methods := []string{e.route.Method}
		if e.route.AnyMethod() {
			methods = anyMethods
		}
		for _, m := range methods {
			if item.GetOperation(m) != nil {
				continue
			}
			item.SetOperation(m, newOperation(e.owner, m, e.route.Pattern))
		}
	}
	return doc
}

func newOperation(owner, method, pattern string) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = owner + "_" + strings.ToLower(method) + "_" + operationSuffix(pattern)
	op.Tags = []string{owner}
	for _, name := range handler.PatternParams(pattern) {
		op.AddParameter(openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()))
	}
	desc := "Mocked response"
	op.Responses = openapi3.NewResponses(openapi3.WithName("default", &openapi3.Response{Description: &desc}))
	return op
}

// openAPIPath drops the rest marker from {name...} wildcards.
func openAPIPath(pattern string) string {
	return strings.ReplaceAll(pattern, "...}", "}")
}

func operationSuffix(pattern string) string {
	s := strings.Trim(pattern, "/")
	if s == "" {
		return "root"
	}
	r := strings.NewReplacer("/", "_", "{", "", "}", "", ".", "")
	return r.Replace(s)
}
