// Package handler loads user-supplied request handlers at runtime.
//
// A handler is submitted as source text and turned into a Module: a named set
// of routes. Two formats are supported.
//
// Go source is interpreted. The file must declare a function returning its
// route table, by default named Routes:
//
//	package greet
//
//	import (
//		"net/http"
//
//		"github.com/httpmocker/httpmocker/pkg/handlerdata"
//	)
//
//	func Routes() map[string]http.HandlerFunc {
//		return map[string]http.HandlerFunc{
//			"GET /hello": func(w http.ResponseWriter, r *http.Request) {
//				handlerdata.WriteJSON(w, http.StatusOK, handlerdata.From(r))
//			},
//		}
//	}
//
// YAML is a declarative route list validated against a JSON Schema. Each
// route answers with a fixed body, a JSONPath selection of the injected
// handler data, or the result of an expression.
package handler
