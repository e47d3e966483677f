package handlerdata

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey struct{}

// Middleware attaches the data stored for each request path to the request
// context. Requests without stored data get an empty object.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value, ok := s.Lookup(r.URL.Path)
		if !ok {
			value = map[string]any{}
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), value)))
	})
}

// NewContext returns a copy of ctx carrying value as handler data.
func NewContext(ctx context.Context, value any) context.Context {
	return context.WithValue(ctx, contextKey{}, value)
}

// Value returns the handler data attached to r, or nil.
func Value(r *http.Request) any {
	return r.Context().Value(contextKey{})
}

// From returns the handler data attached to r as an object. Non-object data
// yields an empty map.
func From(r *http.Request) map[string]any {
	if m, ok := Value(r).(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
