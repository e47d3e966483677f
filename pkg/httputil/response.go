// Package httputil provides the JSON response helpers shared by the
// controller and the mock apps.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxBodySize bounds request bodies read by DecodeJSON and ReadBody.
const MaxBodySize = 10 << 20

// ErrEmptyBody is returned by DecodeJSON when the request has no body.
var ErrEmptyBody = errors.New("empty request body")

// MessageResponse is the success body: {"msg": "..."}.
type MessageResponse struct {
	Msg string `json:"msg"`
}

// ErrorResponse is the failure body: {"error": "..."}.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
// It sets the Content-Type header to application/json.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteRawJSON writes an already-encoded JSON document.
func WriteRawJSON(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

// WriteMessage writes {"msg": message}.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, MessageResponse{Msg: message})
}

// WriteError writes {"error": message}.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteInternalError writes a 500 error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

// RequireHeaders reports the first missing header and writes the 400 response
// for it. It returns true when every header is present.
func RequireHeaders(w http.ResponseWriter, r *http.Request, names ...string) bool {
	for _, name := range names {
		if r.Header.Get(name) == "" {
			WriteBadRequest(w, name+" header is mandatory.")
			return false
		}
	}
	return true
}

// ReadBody reads the whole request body, bounded by MaxBodySize.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	return io.ReadAll(r.Body)
}

// DecodeJSON decodes the request body into v. An empty body yields ErrEmptyBody.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return ErrEmptyBody
	}
	return err
}
