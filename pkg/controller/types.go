package controller

import "github.com/httpmocker/httpmocker/pkg/supervisor"

// Paths served by the controller.
const (
	AppPath     = "/mock/app"
	AppsPath    = "/mock/apps"
	HealthPath  = "/health"
	MetricsPath = "/metrics"
)

// Request and response headers.
const (
	HeaderAppName      = "m-app-name"
	HeaderAppPort      = "m-app-port"
	HeaderAppHost      = "m-app-host"
	HeaderAppEnableSSL = "m-app-enable-ssl"
	HeaderAppID        = "m-app-id"
)

// CreateAppResponse is returned by POST /mock/app/.
type CreateAppResponse struct {
	Msg string `json:"msg"`
	ID  string `json:"id"`
}

// AppStatusResponse is returned by GET /mock/app/.
type AppStatusResponse struct {
	Status string `json:"status"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	SSL    bool   `json:"ssl"`
}

// AppsResponse is returned by GET /mock/apps.
type AppsResponse struct {
	Apps  []supervisor.Info `json:"apps"`
	Count int               `json:"count"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Running int    `json:"running"`
}
