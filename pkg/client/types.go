package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrNotFound is matched by APIErrors with status 404.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied is returned when an operation does not fit the app or
	// handler state, such as stopping an app that was never started.
	ErrAccessDenied = errors.New("access denied")
)

// APIError is a non-2xx response from the controller or an app.
type APIError struct {
	Status  int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%d: %s (%s)", e.Status, msg, e.Detail)
	}
	return fmt.Sprintf("%d: %s", e.Status, msg)
}

// Is reports 404 responses as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// errorBody covers both {"error": ...} and {"msg": ...} failure bodies.
type errorBody struct {
	Error  string `json:"error"`
	Msg    string `json:"msg"`
	Detail string `json:"detail"`
}

// MessageResponse is a {"msg": ...} body.
type MessageResponse struct {
	Msg string `json:"msg"`
}

// StartResponse is returned by App.Start.
type StartResponse struct {
	Msg string `json:"msg"`
	ID  string `json:"id"`
}

// AppStatus is returned by App.Status.
type AppStatus struct {
	Status string `json:"status"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	SSL    bool   `json:"ssl"`
}

// AppInfo is one entry of Client.Apps.
type AppInfo struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Host      string     `json:"host"`
	Port      int        `json:"port"`
	SSL       bool       `json:"ssl"`
	Pid       int        `json:"pid,omitempty"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	ExitedAt  *time.Time `json:"exitedAt,omitempty"`
}

// RegisterResponse is returned by Handler.Set.
type RegisterResponse struct {
	Msg        string   `json:"msg"`
	Overridden []string `json:"overridden,omitempty"`
}

// UnregisterResponse is returned by Handler.Remove.
type UnregisterResponse struct {
	Msg        string   `json:"msg"`
	NotDeleted []string `json:"notDeleted,omitempty"`
}
